package stream

import (
	"testing"
	"time"
)

func recvOne[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return v
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for value")
	}
	var zero T
	return zero
}

func TestStream_ReplayInitialValue(t *testing.T) {
	s := New("created")
	defer s.Close()

	sub := s.Subscribe()
	defer sub.Cancel()

	if got := recvOne(t, sub); got != "created" {
		t.Errorf("first value = %q, want %q", got, "created")
	}
}

func TestStream_LateSubscriberSeesLatest(t *testing.T) {
	s := New(0)
	defer s.Close()

	s.Publish(1)
	s.Publish(2)
	s.Publish(3)

	sub := s.Subscribe()
	defer sub.Cancel()

	if got := recvOne(t, sub); got != 3 {
		t.Errorf("late subscriber first value = %d, want 3", got)
	}

	s.Publish(4)
	if got := recvOne(t, sub); got != 4 {
		t.Errorf("next value = %d, want 4", got)
	}
}

func TestStream_OrderPreserved(t *testing.T) {
	s := New(0)
	defer s.Close()

	sub := s.Subscribe()
	defer sub.Cancel()

	if got := recvOne(t, sub); got != 0 {
		t.Fatalf("replay value = %d, want 0", got)
	}

	const n = 500
	for i := 1; i <= n; i++ {
		s.Publish(i)
	}

	for i := 1; i <= n; i++ {
		if got := recvOne(t, sub); got != i {
			t.Fatalf("value %d = %d, want %d", i, got, i)
		}
	}
}

func TestStream_MultipleSubscribers(t *testing.T) {
	s := New("init")
	defer s.Close()

	a := s.Subscribe()
	b := s.Subscribe()
	defer a.Cancel()
	defer b.Cancel()

	recvOne(t, a)
	recvOne(t, b)

	s.Publish("x")

	if got := recvOne(t, a); got != "x" {
		t.Errorf("subscriber a got %q, want %q", got, "x")
	}
	if got := recvOne(t, b); got != "x" {
		t.Errorf("subscriber b got %q, want %q", got, "x")
	}
}

func TestStream_CancelStopsDelivery(t *testing.T) {
	s := New(0)
	defer s.Close()

	sub := s.Subscribe()
	recvOne(t, sub)

	sub.Cancel()

	// Publishing after cancel must not reach the subscription.
	s.Publish(42)

	select {
	case v, ok := <-sub.C():
		if ok {
			t.Errorf("received %d after cancel", v)
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after cancel")
	}
}

func TestStream_CloseDrainsThenCloses(t *testing.T) {
	s := New(0)
	sub := s.Subscribe()

	s.Publish(1)
	s.Close()

	// Replay plus the published value must still arrive.
	if got := recvOne(t, sub); got != 0 {
		t.Errorf("first = %d, want 0", got)
	}
	if got := recvOne(t, sub); got != 1 {
		t.Errorf("second = %d, want 1", got)
	}

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed channel after drain")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after stream Close")
	}

	// Publish after Close is a no-op, and Last keeps the final value.
	s.Publish(99)
	if got := s.Last(); got != 1 {
		t.Errorf("Last after Close = %d, want 1", got)
	}
}

func TestStream_SubscribeAfterClose(t *testing.T) {
	s := New("x")
	s.Close()

	sub := s.Subscribe()
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed channel from post-close subscribe")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed for post-close subscribe")
	}
}
