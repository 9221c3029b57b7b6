// Package progress renders flash progress as a single self-overwriting terminal line.
package progress

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// DefaultInterval is the minimum time between two renders.
	DefaultInterval = 200 * time.Millisecond

	// smoothing is the weight of the newest throughput sample.
	smoothing = 0.3
)

// Reporter is a pure observer of a flash. It keeps presentation state only and never
// returns an error to the engine: write failures are logged once and then ignored.
type Reporter struct {
	out      io.Writer
	interval time.Duration
	now      func() time.Time

	started     bool
	start       time.Time
	lastRender  time.Time
	lastSample  time.Time
	lastWritten int64
	rate        float64
	lineLen     int
	broken      bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithInterval sets the minimum time between renders.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d >= 0 {
			r.interval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		r.now = now
	}
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer, opts ...Option) *Reporter {
	r := &Reporter{
		out:      out,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Update records a new byte count and renders when the throttle interval has elapsed
// or the total has been reached. It matches flash.ProgressFunc.
func (r *Reporter) Update(written, total int64) {
	now := r.now()
	if !r.started {
		r.started = true
		r.start = now
		r.lastSample = now
	}

	r.sample(now, written)

	done := total >= 0 && written >= total
	if r.lastRender.IsZero() || done || now.Sub(r.lastRender) >= r.interval {
		r.lastRender = now
		r.render(Line(written, total, r.rate, r.eta(written, total)))
	}
}

// Finish ends the progress line and prints a summary.
func (r *Reporter) Finish(written int64) {
	elapsed := time.Duration(0)
	if r.started {
		elapsed = r.now().Sub(r.start)
	}

	avg := 0.0
	if elapsed > 0 {
		avg = float64(written) / elapsed.Seconds()
	}

	r.render(fmt.Sprintf("%s written in %s (%s/s)", humanize.IBytes(uint64(written)), elapsed.Round(time.Second), humanize.IBytes(uint64(avg))))
	r.write("\n")
	r.lineLen = 0
}

// Rate returns the smoothed throughput in bytes per second.
func (r *Reporter) Rate() float64 {
	return r.rate
}

func (r *Reporter) sample(now time.Time, written int64) {
	dt := now.Sub(r.lastSample).Seconds()
	if dt <= 0 {
		return
	}

	instant := float64(written-r.lastWritten) / dt
	if r.rate == 0 {
		r.rate = instant
	} else {
		r.rate = smoothing*instant + (1-smoothing)*r.rate
	}
	r.lastSample = now
	r.lastWritten = written
}

func (r *Reporter) eta(written, total int64) time.Duration {
	if total < 0 || r.rate <= 0 || written >= total {
		return -1
	}
	return time.Duration(float64(total-written) / r.rate * float64(time.Second))
}

func (r *Reporter) render(line string) {
	pad := ""
	if n := r.lineLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	r.lineLen = len(line)
	r.write("\r" + line + pad)
}

func (r *Reporter) write(s string) {
	if r.broken {
		return
	}
	if _, err := io.WriteString(r.out, s); err != nil {
		r.broken = true
		slog.Warn("progress_render_failed", "error", err)
	}
}

// Line formats one progress line. rate is in bytes per second; a negative eta or total
// is omitted.
func Line(written, total int64, rate float64, eta time.Duration) string {
	var b strings.Builder

	if total >= 0 {
		pct := 100.0
		if total > 0 {
			pct = float64(written) / float64(total) * 100
		}
		fmt.Fprintf(&b, "%s / %s (%5.1f%%)", humanize.IBytes(uint64(written)), humanize.IBytes(uint64(total)), pct)
	} else {
		b.WriteString(humanize.IBytes(uint64(written)))
	}

	if rate > 0 {
		fmt.Fprintf(&b, "  %s/s", humanize.IBytes(uint64(rate)))
	}
	if eta >= 0 {
		fmt.Fprintf(&b, "  ETA %s", eta.Round(time.Second))
	}
	return b.String()
}
