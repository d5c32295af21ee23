package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("login.", 10)
	defer unsub()

	b.Emit(KindLoginCodeRequested, int64(42))

	select {
	case evt := <-ch:
		if evt.Kind != KindLoginCodeRequested {
			t.Errorf("kind = %q, want %q", evt.Kind, KindLoginCodeRequested)
		}
		if owner, ok := evt.Payload.(int64); !ok || owner != 42 {
			t.Errorf("payload = %v, want 42", evt.Payload)
		}
		if evt.Timestamp.IsZero() {
			t.Error("Emit should stamp the event time")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	loginCh, unsub1 := b.Subscribe("login.", 10)
	defer unsub1()
	bcastCh, unsub2 := b.Subscribe("broadcast.", 10)
	defer unsub2()

	b.Emit(KindBroadcastStarted, nil)

	select {
	case <-bcastCh:
	case <-time.After(time.Second):
		t.Fatal("broadcast subscriber did not receive event")
	}

	select {
	case evt := <-loginCh:
		t.Errorf("login subscriber received %q, want nothing", evt.Kind)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("", 1)
	unsub()

	b.Emit(KindJoinFinished, nil)

	select {
	case evt := <-ch:
		t.Errorf("received %q after unsubscribe", evt.Kind)
	default:
	}
}

func TestFullSubscriberDoesNotBlock(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe("", 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Second publish would block forever without the non-blocking send.
		b.Emit(KindJoinStarted, nil)
		b.Emit(KindJoinFinished, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}
