package control

import (
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progressBar renders pipeline progress on a terminal. The zero value is a
// no-op so callers need not check whether output is interactive.
type progressBar struct {
	p   *mpb.Progress
	bar *mpb.Bar

	mu    sync.Mutex
	stage string
}

func newProgressBar(w io.Writer) *progressBar {
	pb := &progressBar{}
	pb.p = mpb.New(mpb.WithOutput(w), mpb.WithWidth(48))
	pb.bar = pb.p.AddBar(100,
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string { return pb.stageName() }, decor.WC{W: 42, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 6}),
		),
	)
	return pb
}

func (b *progressBar) stageName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stage
}

// Update matches detect.ProgressFunc.
func (b *progressBar) Update(percent int, stage string) {
	if b == nil || b.bar == nil {
		return
	}
	b.mu.Lock()
	b.stage = stage
	b.mu.Unlock()
	b.bar.SetCurrent(int64(percent))
}

// Close waits for the bar to render. Unfinished bars are aborted in place.
func (b *progressBar) Close() {
	if b == nil || b.p == nil {
		return
	}
	if !b.bar.Completed() {
		b.bar.Abort(false)
	}
	b.p.Wait()
}
