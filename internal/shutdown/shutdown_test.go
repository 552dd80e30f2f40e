package shutdown

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockShutdownable is a test implementation of Shutdownable
type mockShutdownable struct {
	closeCalled bool
	closeErr    error
	closeDelay  time.Duration
	order       *[]string
	name        string
}

func (m *mockShutdownable) Close() error {
	if m.closeDelay > 0 {
		time.Sleep(m.closeDelay)
	}
	m.closeCalled = true
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	return m.closeErr
}

func newTestCoordinator() *Coordinator {
	return New(5*time.Second, zerolog.Nop())
}

func TestNew(t *testing.T) {
	c := New(10*time.Second, zerolog.Nop())

	if c == nil {
		t.Fatal("expected non-nil coordinator")
	}
	if c.timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", c.timeout)
	}
	if c.shutdownCh == nil {
		t.Error("expected shutdownCh to be initialized")
	}
	if c.Signalled() {
		t.Error("new coordinator should not be signalled")
	}
}

func TestShutdown(t *testing.T) {
	c := newTestCoordinator()
	comp := &mockShutdownable{}
	hookCalled := false

	c.Register("storage", comp, PriorityStorage)
	c.RegisterHook("metrics", func(ctx context.Context) error {
		hookCalled = true
		return nil
	}, PriorityMetrics)

	if err := c.Shutdown(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !comp.closeCalled {
		t.Error("expected component Close() to be called")
	}
	if !hookCalled {
		t.Error("expected hook to be called")
	}
}

func TestShutdownOnce(t *testing.T) {
	c := newTestCoordinator()
	callCount := 0

	c.RegisterHook("counter", func(ctx context.Context) error {
		callCount++
		return nil
	}, PriorityMetrics)

	c.Shutdown()
	c.Shutdown()
	c.Shutdown()

	if callCount != 1 {
		t.Errorf("expected hook to run once, ran %d times", callCount)
	}
}

func TestShutdownPriority(t *testing.T) {
	c := newTestCoordinator()
	var order []string

	c.Register("storage", &mockShutdownable{name: "storage", order: &order}, PriorityStorage)
	c.Register("pipeline", &mockShutdownable{name: "pipeline", order: &order}, PriorityPipeline)
	c.RegisterHook("metrics", func(ctx context.Context) error {
		order = append(order, "metrics-hook")
		return nil
	}, PriorityMetrics)

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	want := []string{"metrics-hook", "pipeline", "storage"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestShutdownWithError(t *testing.T) {
	c := newTestCoordinator()
	boom := errors.New("close failed")
	failing := &mockShutdownable{closeErr: boom}
	after := &mockShutdownable{}

	c.Register("failing", failing, PriorityPipeline)
	c.Register("after", after, PriorityStorage)

	if err := c.Shutdown(); !errors.Is(err, boom) {
		t.Errorf("Shutdown() error = %v, want %v", err, boom)
	}
	if !after.closeCalled {
		t.Error("components after a failure should still be closed")
	}
}

func TestShutdownTimeout(t *testing.T) {
	c := New(50*time.Millisecond, zerolog.Nop())

	slow := &mockShutdownable{closeDelay: 200 * time.Millisecond}
	second := &mockShutdownable{}
	c.Register("slow", slow, PriorityPipeline)
	c.Register("second", second, PriorityStorage)

	if err := c.Shutdown(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}
	if second.closeCalled {
		t.Error("expected second component to be skipped after timeout")
	}
}

func TestNotifyContextTrigger(t *testing.T) {
	c := newTestCoordinator()
	ctx, cancel := c.NotifyContext(context.Background())
	defer cancel()

	c.TriggerShutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after TriggerShutdown")
	}
	if c.Signalled() {
		t.Error("programmatic trigger should not count as a signal")
	}
}

func TestNotifyContextSignal(t *testing.T) {
	c := newTestCoordinator()
	ctx, cancel := c.NotifyContext(context.Background())
	defer cancel()

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after SIGTERM")
	}
	if !c.Signalled() {
		t.Error("expected Signalled() after SIGTERM")
	}
}

func TestNotifyContextParentCancel(t *testing.T) {
	c := newTestCoordinator()
	parent, parentCancel := context.WithCancel(context.Background())
	ctx, cancel := c.NotifyContext(parent)
	defer cancel()

	parentCancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled with its parent")
	}
}

func TestTriggerShutdownConcurrent(t *testing.T) {
	c := newTestCoordinator()
	var calls atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.TriggerShutdown()
			calls.Add(1)
		}()
	}
	wg.Wait()

	if calls.Load() != 20 {
		t.Errorf("expected 20 calls to return, got %d", calls.Load())
	}

	// Shutdown after a trigger must not close the channel twice
	if err := c.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestSortComponentsByPriority(t *testing.T) {
	components := []namedComponent{
		{name: "c", priority: 30},
		{name: "a", priority: 10},
		{name: "b", priority: 20},
		{name: "a2", priority: 10},
	}

	sortComponentsByPriority(components)

	want := []string{"a", "a2", "b", "c"}
	for i, name := range want {
		if components[i].name != name {
			t.Errorf("components[%d] = %s, want %s", i, components[i].name, name)
		}
	}
}

func TestSortHooksByPriority(t *testing.T) {
	hooks := []namedHook{
		{name: "c", priority: 30},
		{name: "a", priority: 10},
		{name: "b", priority: 20},
	}

	sortHooksByPriority(hooks)

	want := []string{"a", "b", "c"}
	for i, name := range want {
		if hooks[i].name != name {
			t.Errorf("hooks[%d] = %s, want %s", i, hooks[i].name, name)
		}
	}
}
