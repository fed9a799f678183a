package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type counter struct {
	n   atomic.Int32
	err error
}

func (c *counter) SoftwareTrigger() error {
	c.n.Add(1)
	return c.err
}

func TestSchedulerPulses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx)

	a, b := &counter{}, &counter{err: errors.New("boom")}
	if err := s.Begin(100, a, b); err != nil {
		t.Fatal(err)
	}
	if !s.Running() {
		t.Fatal("scheduler should be running")
	}
	time.Sleep(150 * time.Millisecond)
	s.Stop()
	if s.Running() {
		t.Fatal("scheduler should be stopped")
	}

	pulses, failures := s.Pulses()
	if pulses == 0 {
		t.Fatal("no pulses fired")
	}
	if failures != pulses {
		t.Fatalf("failures = %d, want %d", failures, pulses)
	}
	if int(a.n.Load()) != pulses || a.n.Load() != b.n.Load() {
		t.Fatalf("a=%d b=%d pulses=%d", a.n.Load(), b.n.Load(), pulses)
	}

	before := a.n.Load()
	time.Sleep(50 * time.Millisecond)
	if a.n.Load() != before {
		t.Fatal("triggers fired after Stop")
	}
}

func TestSchedulerInvalidRate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx)
	if err := s.Begin(0, &counter{}); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("err = %v", err)
	}
}
