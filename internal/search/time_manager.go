package search

import (
	"time"

	"github.com/cricklet/chessuci/internal/position"
)

// DefaultTimeManager spends remaining/movestogo plus most of the increment,
// never dipping into the reserve.
type DefaultTimeManager struct {
	Reserve          time.Duration
	DefaultMovesToGo int
}

var _ TimeManager = (*DefaultTimeManager)(nil)

func NewDefaultTimeManager() DefaultTimeManager {
	return DefaultTimeManager{Reserve: 50 * time.Millisecond, DefaultMovesToGo: 30}
}

func (m DefaultTimeManager) Allocate(clock Clock, side position.Color) time.Duration {
	remaining := clock.Remaining(side)
	if remaining.IsEmpty() {
		return 0
	}

	reserve := m.Reserve
	if clock.Overhead > reserve {
		reserve = clock.Overhead
	}
	available := remaining.Value() - reserve
	if available <= 0 {
		return 0
	}

	movesToGo := clock.MovesToGo.ValueOr(m.DefaultMovesToGo)
	if movesToGo <= 0 {
		movesToGo = 1
	}

	budget := remaining.Value()/time.Duration(movesToGo) + clock.Increment(side)*3/4
	if budget > available {
		budget = available
	}
	if budget < 0 {
		budget = 0
	}
	return budget
}
