package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// FFmpeg decodes any container ffmpeg understands to mono float32 PCM at TargetRate.
type FFmpeg struct {
	Path      string
	Timeout   time.Duration
	ExtraArgs []string
	Logger    *logrus.Logger
}

// Args builds the ffmpeg argument list for input.
func (f FFmpeg) Args(input string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-i", input}
	if IsVideo(input) {
		args = append(args, "-vn")
	}
	args = append(args, f.ExtraArgs...)
	args = append(args,
		"-ac", "1",
		"-ar", strconv.Itoa(TargetRate),
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"pipe:1",
	)
	return args
}

// Decode runs ffmpeg on input and returns the decoded samples.
func (f FFmpeg) Decode(ctx context.Context, input string) ([]float64, error) {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	args := f.Args(input)
	if f.Logger != nil {
		f.Logger.WithField("args", strings.Join(args, " ")).Debug("running ffmpeg")
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("ffmpeg decode timed out after %s", f.Timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("ffmpeg decode failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}
	return bytesToFloat32(out), nil
}

func bytesToFloat32(data []byte) []float64 {
	n := len(data) / 4
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = float64(math.Float32frombits(bits))
	}
	return out
}
