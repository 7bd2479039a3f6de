package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig(limit int64) Config {
	return Config{
		MemoryLimitBytes:  limit,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     10 * time.Millisecond,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MemoryLimitBytes != 0 {
		t.Errorf("MemoryLimitBytes = %d, want 0", cfg.MemoryLimitBytes)
	}
	if cfg.HighWaterMark >= cfg.CriticalWaterMark {
		t.Errorf("HighWaterMark %.2f should be below CriticalWaterMark %.2f", cfg.HighWaterMark, cfg.CriticalWaterMark)
	}
	if cfg.CheckInterval <= 0 {
		t.Errorf("CheckInterval = %v, want positive", cfg.CheckInterval)
	}
}

func TestNewMonitorExplicitLimit(t *testing.T) {
	m := NewMonitor(testConfig(100 << 20))
	if m.Limit() != 100<<20 {
		t.Errorf("Limit() = %d, want %d", m.Limit(), 100<<20)
	}
}

func TestObservePauseAndResume(t *testing.T) {
	const limit = 1000
	m := NewMonitor(testConfig(limit))

	tests := []struct {
		name       string
		alloc      uint64
		wantPaused bool
	}{
		{"below high water", 500, false},
		{"between marks stays running", 800, false},
		{"critical pauses", 900, true},
		{"between marks stays paused", 750, true},
		{"below high water resumes", 600, false},
	}

	for _, tt := range tests {
		m.observe(tt.alloc)
		if got := m.IsPaused(); got != tt.wantPaused {
			t.Errorf("%s: IsPaused() = %v, want %v", tt.name, got, tt.wantPaused)
		}
	}

	current, lim, usage := m.GetStats()
	if current != 600 || lim != limit {
		t.Errorf("GetStats() = (%d, %d), want (600, %d)", current, lim, limit)
	}
	if usage != 0.6 {
		t.Errorf("usage = %v, want 0.6", usage)
	}
}

func TestWaitNotPaused(t *testing.T) {
	m := NewMonitor(testConfig(1000))
	if err := m.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v, want nil", err)
	}
}

func TestWaitReleasedOnResume(t *testing.T) {
	m := NewMonitor(testConfig(1000))
	m.observe(950)

	done := make(chan error, 1)
	go func() {
		done <- m.Wait(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("Wait() returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	m.observe(100)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait() did not return after resume")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	m := NewMonitor(testConfig(1000))
	m.observe(950)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := m.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestWaitReleasedOnStop(t *testing.T) {
	m := NewMonitor(testConfig(1000))
	m.observe(950)

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Stop()
	}()

	if err := m.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want Canceled", err)
	}
}

func TestStartStop(t *testing.T) {
	m := NewMonitor(testConfig(1 << 40))
	m.Start()
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	m.Stop()

	if m.IsPaused() {
		t.Error("monitor with a huge limit should not pause")
	}
}
