package statehub

import (
	"sync"
	"testing"
	"time"
)

func receive[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestLateSubscriberReceivesLatest(t *testing.T) {
	hub := New[int](4)
	hub.Publish("OUTPUT", 1)
	hub.Publish("OUTPUT", 2)

	sub := hub.Subscribe("OUTPUT")
	defer sub.Unsubscribe()
	if got := receive(t, sub); got != 2 {
		t.Fatalf("expected latest value 2, got %d", got)
	}

	hub.Publish("OUTPUT", 3)
	if got := receive(t, sub); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestSubscribeWithoutValueWaits(t *testing.T) {
	hub := New[string](0)
	sub := hub.Subscribe("x")
	select {
	case v := <-sub.C():
		t.Fatalf("unexpected value %q", v)
	default:
	}
	if _, ok := hub.Latest("x"); ok {
		t.Fatal("expected no latest value")
	}
}

func TestTagsAreIsolated(t *testing.T) {
	hub := New[int](4)
	a := hub.Subscribe("a")
	b := hub.Subscribe("b")
	hub.Publish("a", 7)
	if got := receive(t, a); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	select {
	case v := <-b.C():
		t.Fatalf("tag b received %d", v)
	default:
	}
}

func TestFullBufferCoalescesToNewest(t *testing.T) {
	hub := New[int](2)
	sub := hub.Subscribe("t")
	for i := 1; i <= 10; i++ {
		hub.Publish("t", i)
	}
	first := receive(t, sub)
	second := receive(t, sub)
	if first != 9 || second != 10 {
		t.Fatalf("expected [9 10], got [%d %d]", first, second)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := New[int](1)
	sub := hub.Subscribe("t")
	sub.Unsubscribe()
	sub.Unsubscribe()
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel")
	}
	if n := hub.Subscribers("t"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	hub.Publish("t", 1)
}

func TestCloseDetachesEveryone(t *testing.T) {
	hub := New[int](1)
	subs := []*Subscription[int]{hub.Subscribe("a"), hub.Subscribe("a"), hub.Subscribe("b")}
	hub.Close()
	for _, sub := range subs {
		if _, ok := <-sub.C(); ok {
			t.Fatalf("expected %s subscription closed", sub.Tag())
		}
	}
	late := hub.Subscribe("a")
	if _, ok := <-late.C(); ok {
		t.Fatal("expected subscription on closed hub to be closed")
	}
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	hub := New[int](1)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := hub.Subscribe("t")
			for j := range 50 {
				hub.Publish("t", i*100+j)
			}
			sub.Unsubscribe()
		}()
	}
	wg.Wait()
	if n := hub.Subscribers("t"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}
