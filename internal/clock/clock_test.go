package clock

import (
	"testing"
	"time"
)

func TestMock(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Now returns the frozen time", func(t *testing.T) {
		c := NewMock(start)
		if !c.Now().Equal(start) {
			t.Errorf("Now: expected %v, got %v", start, c.Now())
		}
	})

	t.Run("Advance moves time forward", func(t *testing.T) {
		c := NewMock(start)
		c.Advance(90 * time.Minute)
		want := start.Add(90 * time.Minute)
		if !c.Now().Equal(want) {
			t.Errorf("Now: expected %v, got %v", want, c.Now())
		}
	})

	t.Run("Set can move time backwards", func(t *testing.T) {
		c := NewMock(start)
		earlier := start.Add(-48 * time.Hour)
		c.Set(earlier)
		if !c.Now().Equal(earlier) {
			t.Errorf("Now: expected %v, got %v", earlier, c.Now())
		}
	})
}

func TestReal(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	if got.Before(before) {
		t.Errorf("Real.Now went backwards: %v before %v", got, before)
	}
}
