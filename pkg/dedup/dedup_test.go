package dedup

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestKey(t *testing.T) {
	if got := Key("inv-1", "addr-9"); got != "inv-1\x00addr-9" {
		t.Errorf("Key() = %q", got)
	}
}

func TestKey_DashedPartsDoNotCollide(t *testing.T) {
	tests := []struct {
		name string
		a, b [2]string
	}{
		{name: "dash moves between parts", a: [2]string{"a-b", "c"}, b: [2]string{"a", "b-c"}},
		{name: "uuid-like ids", a: [2]string{"inv-1-addr", "9"}, b: [2]string{"inv-1", "addr-9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			if !s.Add(Key(tt.a[0], tt.a[1])) {
				t.Fatal("first key should be new")
			}
			if !s.Add(Key(tt.b[0], tt.b[1])) {
				t.Errorf("Key(%q, %q) collides with Key(%q, %q)", tt.b[0], tt.b[1], tt.a[0], tt.a[1])
			}
		})
	}
}

func TestSet_SeenAndMark(t *testing.T) {
	s := New()
	key := Key("inv-1", "addr-1")

	if s.Seen(key) {
		t.Fatal("new set should not have seen key")
	}
	s.Mark(key)
	if !s.Seen(key) {
		t.Fatal("key should be seen after Mark")
	}
	if s.Seen(Key("inv-1", "addr-2")) {
		t.Error("same identifier under another address is a different record")
	}
}

func TestSet_Add_CountsOnce(t *testing.T) {
	s := New()
	count := 0

	// same record observed in two batches
	for _, batch := range [][]string{{"a", "b"}, {"b", "c"}} {
		for _, id := range batch {
			if s.Add(Key(id, "addr-1")) {
				count++
			}
		}
	}

	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestSet_Add_Concurrent(t *testing.T) {
	s := New()
	var added atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Add("shared") {
				added.Add(1)
			}
		}()
	}
	wg.Wait()

	if added.Load() != 1 {
		t.Errorf("Add reported new %d times, want 1", added.Load())
	}
}
