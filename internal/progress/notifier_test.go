package progress

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribe_SendsConnected(t *testing.T) {
	n := NewNotifier()
	ch := n.Subscribe("s1")

	ev := <-ch
	if ev.Type != EventConnected {
		t.Errorf("first event = %s, want %s", ev.Type, EventConnected)
	}
}

func TestSubscribe_EvictsPriorSubscriber(t *testing.T) {
	n := NewNotifier()
	first := n.Subscribe("s1")
	<-first // connected

	second := n.Subscribe("s1")
	<-second // connected

	// The evicted channel must be closed.
	if _, open := <-first; open {
		t.Error("prior subscriber channel not closed on re-subscribe")
	}

	n.Step("s1", 1, 5, "normalizing headers")
	ev := <-second
	if ev.Type != EventProgress || ev.Step != 1 || ev.TotalSteps != 5 {
		t.Errorf("new subscriber event = %+v", ev)
	}
}

func TestPublish_NoSubscriberDropsEvent(t *testing.T) {
	n := NewNotifier()
	// Must not panic or block.
	n.Step("ghost", 1, 5, "nobody listening")
	n.Complete("ghost", "done")
}

func TestPublish_FullChannelDropsEvent(t *testing.T) {
	n := NewNotifier()
	ch := n.Subscribe("s1")

	// Fill the buffer without draining; Publish must never block.
	for i := 0; i < 64; i++ {
		n.Step("s1", i, 64, "flood")
	}

	ev := <-ch
	if ev.Type != EventConnected {
		t.Errorf("first buffered event = %s, want %s", ev.Type, EventConnected)
	}
}

func TestPublish_SafeDuringResubscribe(t *testing.T) {
	n := NewNotifier()
	done := make(chan struct{})
	var wg sync.WaitGroup

	// A reconnecting client closes and replaces the session channel
	// while an in-flight upload keeps publishing to the same session.
	// Neither side may panic.
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			ch := n.Subscribe("s1")
			n.Unsubscribe("s1", ch)
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			n.Step("s1", 3, 6, "running post-processing")
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}

func TestUnsubscribe_IgnoresStaleChannel(t *testing.T) {
	n := NewNotifier()
	stale := n.Subscribe("s1")
	<-stale

	current := n.Subscribe("s1")
	<-current

	// Unsubscribing the evicted channel must not tear down the new one.
	n.Unsubscribe("s1", stale)

	n.Complete("s1", "done")
	ev := <-current
	if ev.Type != EventComplete {
		t.Errorf("event after stale unsubscribe = %+v", ev)
	}
}
