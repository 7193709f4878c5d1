package window

import (
	"reflect"
	"testing"
)

func sum(items []int) int {
	total := 0
	for _, v := range items {
		total += v
	}
	return total
}

func TestWindow_Push(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushes   []int
		want     []int // results of ready pushes, in order
		wantLen  int
	}{
		{
			name:     "not ready until full",
			capacity: 3,
			pushes:   []int{1, 2},
			want:     nil,
			wantLen:  2,
		},
		{
			name:     "slides by one",
			capacity: 2,
			pushes:   []int{1, 2, 3, 4},
			want:     []int{3, 5, 7},
			wantLen:  1,
		},
		{
			name:     "capacity one evaluates every push",
			capacity: 1,
			pushes:   []int{5, 6},
			want:     []int{5, 6},
			wantLen:  0,
		},
		{
			name:     "capacity below one is clamped",
			capacity: 0,
			pushes:   []int{9},
			want:     []int{9},
			wantLen:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New[int, int](tt.capacity, sum)

			var got []int
			for _, v := range tt.pushes {
				if r, ok := w.Push(v); ok {
					got = append(got, r)
				}
			}

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("results = %v, want %v", got, tt.want)
			}
			if w.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", w.Len(), tt.wantLen)
			}
		})
	}
}

func TestWindow_SteadyState(t *testing.T) {
	const capacity = 4
	w := New[int, []int](capacity, func(items []int) []int {
		out := make([]int, len(items))
		copy(out, items)
		return out
	})

	for i := 0; i < 100; i++ {
		contents, ok := w.Push(i)
		if i < capacity-1 {
			if ok {
				t.Fatalf("push %d: ready before full", i)
			}
			continue
		}
		if !ok {
			t.Fatalf("push %d: expected exactly one evaluation", i)
		}
		if len(contents) != capacity {
			t.Fatalf("push %d: evaluated %d items, want %d", i, len(contents), capacity)
		}
		if contents[0] != i-capacity+1 || contents[capacity-1] != i {
			t.Fatalf("push %d: contents %v not in insertion order", i, contents)
		}
		if w.Len() != capacity-1 {
			t.Fatalf("push %d: Len() = %d after eviction, want %d", i, w.Len(), capacity-1)
		}
	}
}

func TestWindow_CloneAndRelease(t *testing.T) {
	type box struct{ v int }

	var released []int
	w := New[*box, int](2,
		func(items []*box) int { return items[0].v + items[1].v },
		WithClone[*box, int](func(b *box) *box { return &box{v: b.v} }),
		WithRelease[*box, int](func(b *box) { released = append(released, b.v) }),
	)

	b := &box{v: 1}
	w.Push(b)
	b.v = 100 // caller mutates its value after pushing

	got, ok := w.Push(&box{v: 2})
	if !ok {
		t.Fatal("expected ready")
	}
	if got != 3 {
		t.Errorf("result = %d, want 3 (window must hold a snapshot)", got)
	}
	if !reflect.DeepEqual(released, []int{1}) {
		t.Errorf("released = %v, want [1]", released)
	}

	w.Reset()
	if w.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", w.Len())
	}
	if !reflect.DeepEqual(released, []int{1, 2}) {
		t.Errorf("released after Reset = %v, want [1 2]", released)
	}
}

func TestWindow_ItemsIsCopy(t *testing.T) {
	w := New[int, int](3, sum)
	w.Push(1)
	w.Push(2)

	items := w.Items()
	items[0] = 42

	if w.Items()[0] != 1 {
		t.Error("Items() should return a copy")
	}
	if w.Cap() != 3 {
		t.Errorf("Cap() = %d, want 3", w.Cap())
	}
}
