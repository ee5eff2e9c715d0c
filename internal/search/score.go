package search

import (
	"fmt"

	"github.com/cricklet/chessuci/internal/uci"
)

// Score is in centipawns. Scores within MaxPly of MateScore encode a mate
// at that many plies from the root.
type Score int

const (
	MateScore Score = 100000
	Infinity  Score = MateScore + 1
	MaxPly          = 256
)

func MateIn(ply int) Score {
	return MateScore - Score(ply)
}

func MatedIn(ply int) Score {
	return -MateScore + Score(ply)
}

func (s Score) IsMate() bool {
	return s >= MateScore-MaxPly || s <= -MateScore+MaxPly
}

// MateMoves is the signed number of moves to mate, negative when the side
// to move is being mated.
func (s Score) MateMoves() int {
	if s > 0 {
		return int(MateScore-s+1) / 2
	}
	return -int(MateScore+s) / 2
}

func (s Score) UCI() uci.Score {
	if s.IsMate() {
		return uci.MateIn(s.MateMoves())
	}
	return uci.Centipawns(int(s))
}

func (s Score) String() string {
	if s.IsMate() {
		if s > 0 {
			return fmt.Sprint("mate+", s.MateMoves())
		}
		return fmt.Sprint("mate-", -s.MateMoves())
	}
	return fmt.Sprint(int(s))
}

// toTable makes mate scores relative to the node they are stored at.
func (s Score) toTable(ply int) Score {
	if s >= MateScore-MaxPly {
		return s + Score(ply)
	} else if s <= -MateScore+MaxPly {
		return s - Score(ply)
	}
	return s
}

func (s Score) fromTable(ply int) Score {
	if s >= MateScore-MaxPly {
		return s - Score(ply)
	} else if s <= -MateScore+MaxPly {
		return s + Score(ply)
	}
	return s
}
