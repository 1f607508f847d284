package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func seq(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{name: "empty", n: 0, size: 50, sizes: nil},
		{name: "single partial", n: 7, size: 50, sizes: []int{7}},
		{name: "exact multiple", n: 100, size: 50, sizes: []int{50, 50}},
		{name: "120 by 50", n: 120, size: 50, sizes: []int{50, 50, 20}},
		{name: "write batches", n: 23, size: 10, sizes: []int{10, 10, 3}},
		{name: "size one", n: 3, size: 1, sizes: []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches, err := Partition(seq(tt.n), tt.size)
			if err != nil {
				t.Fatalf("Partition failed: %v", err)
			}
			if len(batches) != len(tt.sizes) {
				t.Fatalf("got %d batches, want %d", len(batches), len(tt.sizes))
			}

			next := 0
			for i, b := range batches {
				if len(b) != tt.sizes[i] {
					t.Errorf("batch %d size = %d, want %d", i, len(b), tt.sizes[i])
				}
				for _, item := range b {
					if item != next {
						t.Fatalf("order broken: got %d, want %d", item, next)
					}
					next++
				}
			}
		})
	}
}

func TestPartition_InvalidSize(t *testing.T) {
	if _, err := Partition(seq(3), 0); !errors.Is(err, ErrInvalidBatchSize) {
		t.Errorf("expected ErrInvalidBatchSize, got %v", err)
	}
}

func TestPartition_BatchCountProperty(t *testing.T) {
	for n := 0; n <= 130; n++ {
		for _, size := range []int{1, 3, 10, 50} {
			batches, _ := Partition(seq(n), size)
			want := (n + size - 1) / size
			if len(batches) != want {
				t.Fatalf("n=%d size=%d: got %d batches, want %d", n, size, len(batches), want)
			}
		}
	}
}

func TestRun_SequentialBatchesBoundConcurrency(t *testing.T) {
	f := New(Config{BatchSize: 5, Operation: "test"})

	var inFlight, peak atomic.Int32
	fetch := func(ctx context.Context, item int) (int, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return item * 2, nil
	}

	var seen []int
	summary, err := Run(context.Background(), f, seq(12), fetch, func(b Batch[int, int]) {
		if n := inFlight.Load(); n != 0 {
			t.Errorf("batch %d delivered with %d calls in flight", b.Index, n)
		}
		seen = append(seen, len(b.Results))
		for _, r := range b.Results {
			if r.Value != r.Item*2 {
				t.Errorf("item %d: value %d", r.Item, r.Value)
			}
		}
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := peak.Load(); got > 5 {
		t.Errorf("peak concurrency = %d, want <= 5", got)
	}
	if len(seen) != 3 || seen[0] != 5 || seen[1] != 5 || seen[2] != 2 {
		t.Errorf("batch sizes = %v, want [5 5 2]", seen)
	}
	if summary.Batches != 3 || summary.Succeeded != 12 || summary.Failed != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestRun_IsolatesFailures(t *testing.T) {
	f := New(Config{BatchSize: 4})
	boom := errors.New("boom")

	fetch := func(ctx context.Context, item int) (string, error) {
		switch item {
		case 2:
			return "", boom
		case 5:
			panic("unexpected payload")
		}
		return "ok", nil
	}

	var processed []int
	summary, err := Run(context.Background(), f, seq(8), fetch, func(b Batch[int, string]) {
		processed = append(processed, b.Processed)
		for _, r := range b.Results {
			switch r.Item {
			case 2:
				if !errors.Is(r.Err, boom) {
					t.Errorf("item 2 err = %v", r.Err)
				}
			case 5:
				if r.Err == nil {
					t.Error("item 5 panic should become an error")
				}
			default:
				if !r.OK() || r.Value != "ok" {
					t.Errorf("item %d should succeed, got %+v", r.Item, r)
				}
			}
		}
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Failed != 2 || summary.Succeeded != 6 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if len(processed) != 2 || processed[0] != 4 || processed[1] != 8 {
		t.Errorf("processed = %v, want [4 8]", processed)
	}
}

func TestRun_ItemTimeout(t *testing.T) {
	f := New(Config{BatchSize: 2, Timeout: 10 * time.Millisecond})

	fetch := func(ctx context.Context, item int) (int, error) {
		if item == 0 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return item, nil
	}

	summary, err := Run(context.Background(), f, seq(2), fetch, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", summary.Failed)
	}
}

func TestNew_Defaults(t *testing.T) {
	f := New(Config{})
	if f.BatchSize() != ReadBatchSize {
		t.Errorf("BatchSize() = %d, want %d", f.BatchSize(), ReadBatchSize)
	}
}

func TestSettle(t *testing.T) {
	results := Settle(context.Background(), []string{"a", "b"}, func(ctx context.Context, s string) (int, error) {
		if s == "b" {
			return 0, errors.New("nope")
		}
		return len(s), nil
	})

	if len(results) != 2 || !results[0].OK() || results[1].OK() {
		t.Errorf("unexpected results: %+v", results)
	}
}
