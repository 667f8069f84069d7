package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestFake_AdvanceMovesNow(t *testing.T) {
	c := Fake(epoch)
	assert.Equal(t, epoch, c.Now())

	c.Advance(30 * time.Minute)
	assert.Equal(t, epoch.Add(30*time.Minute), c.Now())
}

func TestFake_TickerFiresOncePerAdvance(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(10 * time.Second)
	defer tk.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(40 * time.Second)
	select {
	case got := <-tk.C():
		assert.Equal(t, epoch.Add(45*time.Second), got)
	default:
		t.Fatal("ticker did not fire")
	}

	select {
	case <-tk.C():
		t.Fatal("ticker fired twice for a single advance")
	default:
	}

	c.Advance(5 * time.Second)
	select {
	case <-tk.C():
	default:
		t.Fatal("ticker did not fire on the next interval")
	}
}

func TestFake_StopRemovesTicker(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(time.Second)
	require.Equal(t, 1, c.PendingTickers())

	tk.Stop()
	tk.Stop()
	assert.Equal(t, 0, c.PendingTickers())
}

func TestFake_NonPositiveIntervalPanics(t *testing.T) {
	require.Panics(t, func() { Fake(epoch).NewTicker(0) })
}

func TestReal_NowIsCurrent(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	assert.False(t, got.Before(before))
}
