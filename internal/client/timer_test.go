package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
	"github.com/cricklet/chessuci/internal/uci"
)

func fakeNow(t *Timer) *time.Time {
	now := time.Unix(1000, 0)
	t.now = func() time.Time { return now }
	return &now
}

func TestTimerWithIncrement(t *testing.T) {
	timer := NewTimer(5*time.Second, time.Second)
	now := fakeNow(timer)
	timer.Start()

	*now = now.Add(3 * time.Second)
	timer.MadeMove()
	assert.Equal(t, Some(3*time.Second), timer.Remaining(position.White))

	*now = now.Add(2 * time.Second)
	timer.MadeMove()
	assert.Equal(t, Some(4*time.Second), timer.Remaining(position.Black))

	*now = now.Add(2 * time.Second)
	timer.MadeMove()
	assert.Equal(t, Some(2*time.Second), timer.Remaining(position.White))
	assert.Equal(t, position.Black, timer.SideToMove())
}

func TestTimerRemainingRunsForSideToMove(t *testing.T) {
	timer := NewTimer(5*time.Second, 0)
	now := fakeNow(timer)
	timer.Start()

	*now = now.Add(1500 * time.Millisecond)
	assert.Equal(t, Some(3500*time.Millisecond), timer.Remaining(position.White))
	assert.Equal(t, Some(5*time.Second), timer.Remaining(position.Black))
	assert.Equal(t, uci.Go{
		WTime: Some(3500 * time.Millisecond),
		BTime: Some(5 * time.Second),
	}, timer.Go())
}

func TestTimerGoFromGo(t *testing.T) {
	g := uci.Go{
		WTime: Some(5 * time.Second),
		WInc:  Some(time.Second),
		BTime: Some(7 * time.Second),
		BInc:  Some(2 * time.Second),
	}
	assert.Equal(t, g, NewTimerFromGo(g, position.White).Go())
}

func TestTimerMoveTime(t *testing.T) {
	timer := NewMoveTimeTimer(100 * time.Millisecond)
	assert.Equal(t, uci.Go{MoveTime: Some(100 * time.Millisecond)}, timer.Go())
	assert.False(t, timer.Flagged(position.White))
}

func TestTimerWithoutClockIsInfinite(t *testing.T) {
	timer := NewTimerFromGo(uci.Go{WTime: Some(time.Second)}, position.Black)
	g := timer.Go()
	assert.True(t, g.Infinite)
	assert.Equal(t, Some(time.Second), g.WTime)
	assert.True(t, timer.Remaining(position.Black).IsEmpty())
}

func TestTimerFlag(t *testing.T) {
	timer := NewTimer(time.Second, 0)
	now := fakeNow(timer)
	timer.Start()

	*now = now.Add(2 * time.Second)
	assert.True(t, timer.Flagged(position.White))
	assert.False(t, timer.Flagged(position.Black))
	assert.Equal(t, Some(time.Duration(0)), timer.Remaining(position.White))
}

func TestTimerMovesToGo(t *testing.T) {
	timer := NewTimer(10*time.Second, 0).WithMovesToGo(2, 5*time.Second)
	fakeNow(timer)
	timer.Start()

	assert.Equal(t, Some(2), timer.Go().MovesToGo)
	timer.MadeMove()
	timer.MadeMove()
	assert.Equal(t, Some(1), timer.Go().MovesToGo)
	timer.MadeMove()
	timer.MadeMove()
	assert.Equal(t, Some(2), timer.Go().MovesToGo)
	assert.Equal(t, Some(15*time.Second), timer.Remaining(position.White))
	assert.Equal(t, Some(15*time.Second), timer.Remaining(position.Black))
}
