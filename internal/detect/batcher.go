package detect

// Range is a half-open run of window indices [Lo, Hi).
type Range struct {
	Lo, Hi int
}

// Len returns the number of windows in r.
func (r Range) Len() int { return r.Hi - r.Lo }

// Batches splits n windows into contiguous ranges of at most size. Only the last
// range may be shorter.
func Batches(n, size int) []Range {
	if n <= 0 {
		return nil
	}
	size = max(1, size)
	out := make([]Range, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		out = append(out, Range{Lo: lo, Hi: min(lo+size, n)})
	}
	return out
}
