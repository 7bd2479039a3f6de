package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"

	"gallery-pipeline/internal/pipeline"
)

const progressInterval = time.Second

// progress prints a one-line status while a run is active. It stays silent
// unless the writer is a terminal, so logs and CI output are not cluttered.
type progress struct {
	out     io.Writer
	enabled bool

	written atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64

	started time.Time
	done    chan struct{}
	wg      sync.WaitGroup
}

func newProgress(out *os.File) *progress {
	return &progress{
		out:     out,
		enabled: term.IsTerminal(int(out.Fd())),
		done:    make(chan struct{}),
	}
}

func (p *progress) observe(r pipeline.Result) {
	switch r.State {
	case pipeline.StateDerivativesWritten:
		p.written.Add(1)
	case pipeline.StateSkipped:
		p.skipped.Add(1)
	default:
		p.failed.Add(1)
	}
}

func (p *progress) start(ctx context.Context) {
	p.started = time.Now()
	if !p.enabled {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.print()
			case <-ctx.Done():
				return
			case <-p.done:
				return
			}
		}
	}()
}

func (p *progress) stop() {
	close(p.done)
	p.wg.Wait()
	if p.enabled {
		p.print()
		fmt.Fprintln(p.out)
	}
}

func (p *progress) line() string {
	w, s, f := p.written.Load(), p.skipped.Load(), p.failed.Load()
	elapsed := time.Since(p.started)
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(w) / secs
	}
	return fmt.Sprintf("processed %d (written %d, skipped %d, failed %d) %.1f/s %v",
		w+s+f, w, s, f, rate, elapsed.Round(time.Second))
}

func (p *progress) print() {
	fmt.Fprintf(p.out, "\r\033[K%s", p.line())
}
