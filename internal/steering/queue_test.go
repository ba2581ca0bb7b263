package steering

import "testing"

func TestEnqueueDequeueOrdering(t *testing.T) {
	q := New()
	q.Enqueue("c1", Item{Text: "first"})
	q.Enqueue("c1", Item{Text: "second"})

	item, ok := q.Dequeue("c1")
	if !ok || item.Text != "first" {
		t.Fatalf("want first, got %+v ok=%v", item, ok)
	}
	item, ok = q.Dequeue("c1")
	if !ok || item.Text != "second" {
		t.Fatalf("want second, got %+v ok=%v", item, ok)
	}
	if _, ok := q.Dequeue("c1"); ok {
		t.Fatal("want empty queue")
	}
}

func TestDropOldestWhenOverCapacity(t *testing.T) {
	q := New()
	q.SetSettings("c1", Settings{MaxItems: 2, DropPolicy: "oldest"})
	q.Enqueue("c1", Item{Text: "a"})
	q.Enqueue("c1", Item{Text: "b"})
	q.Enqueue("c1", Item{Text: "c"})

	items := q.DrainAll("c1")
	if len(items) != 2 || items[0].Text != "b" || items[1].Text != "c" {
		t.Fatalf("want [b c], got %+v", items)
	}
}

func TestDropNewestWhenOverCapacity(t *testing.T) {
	q := New()
	q.SetSettings("c1", Settings{MaxItems: 1, DropPolicy: "newest"})
	q.Enqueue("c1", Item{Text: "a"})
	q.Enqueue("c1", Item{Text: "b"})

	items := q.DrainAll("c1")
	if len(items) != 1 || items[0].Text != "a" {
		t.Fatalf("want [a], got %+v", items)
	}
}

func TestClearRemovesQueueAndSettings(t *testing.T) {
	q := New()
	q.SetSettings("c1", Settings{MaxItems: 5})
	q.Enqueue("c1", Item{Text: "a"})
	q.Clear("c1")

	if q.Size("c1") != 0 {
		t.Fatal("want empty queue after Clear")
	}
	if _, ok := q.Dequeue("c1"); ok {
		t.Fatal("want no items after Clear")
	}
}
