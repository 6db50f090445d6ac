package eventbus

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestBus() *Bus {
	return New(zerolog.Nop(), 0)
}

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	b := newTestBus()
	var order []int

	b.On("x", func(any) { order = append(order, 1) })
	b.On("x", func(any) { order = append(order, 2) })
	b.On("x", func(any) { order = append(order, 3) })

	b.Emit("x", nil)

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestOnceFiresOnlyOnce(t *testing.T) {
	b := newTestBus()
	count := 0
	b.Once("x", func(any) { count++ })

	b.Emit("x", nil)
	b.Emit("x", nil)

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestOffUnregisters(t *testing.T) {
	b := newTestBus()
	count := 0
	sub := b.On("x", func(any) { count++ })
	b.Off(sub)
	b.Emit("x", nil)

	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestPanicIsolatedFromOtherListeners(t *testing.T) {
	b := newTestBus()
	secondRan := false

	b.On("x", func(any) { panic("boom") })
	b.On("x", func(any) { secondRan = true })

	b.Emit("x", nil)

	if !secondRan {
		t.Fatal("second listener should run despite first panicking")
	}
}

func TestClearRemovesAllListeners(t *testing.T) {
	b := newTestBus()
	count := 0
	b.On("x", func(any) { count++ })
	b.On("y", func(any) { count++ })

	b.Clear()
	b.Emit("x", nil)
	b.Emit("y", nil)

	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}
