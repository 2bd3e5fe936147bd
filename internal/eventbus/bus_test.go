package eventbus

import "testing"

func TestFanout(t *testing.T) {
	t.Parallel()
	b := New[string]()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubC()

	b.Publish("x")
	if got := <-a; got != "x" {
		t.Fatalf("a got %q, want x", got)
	}
	if got := <-c; got != "x" {
		t.Fatalf("c got %q, want x", got)
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("channel open after unsubscribe")
	}
	b.Publish("y")
	if got := <-c; got != "y" {
		t.Fatalf("c got %q, want y", got)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New[int]()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(1)
	b.Publish(2)
	if got := <-ch; got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	if b.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", b.Dropped())
	}
}

func TestNilBusPublish(t *testing.T) {
	t.Parallel()
	var b *Bus[int]
	b.Publish(1)
}
