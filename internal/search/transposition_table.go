package search

import (
	"encoding/binary"
	"fmt"

	"github.com/dustin/go-humanize"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
)

type ScoreType int

const (
	NoneType ScoreType = iota
	AlphaFailUpperBound
	BetaFailLowerBound
	Exact
)

type CachedEvaluation struct {
	Depth     int
	Score     Score
	ScoreType ScoreType
	Move      position.Move
	Hash      uint64
}

type TranspositionTable struct {
	Size        int
	Cache       []CachedEvaluation
	Hits        int
	Collisions  int
	DepthTooLow int
	Misses      int
	used        int
}

const _bytesPerEntry = 48

func NewTranspositionTable(size int) *TranspositionTable {
	if size < 1 {
		size = 1
	}
	return &TranspositionTable{
		Size:  size,
		Cache: make([]CachedEvaluation, size),
	}
}

// NewTranspositionTableMB sizes the table to roughly mb megabytes.
func NewTranspositionTableMB(mb int) *TranspositionTable {
	return NewTranspositionTable(mb * 1024 * 1024 / _bytesPerEntry)
}

func HashKey(pos position.Position) uint64 {
	h := pos.Hash()
	return binary.LittleEndian.Uint64(h[:8])
}

func (t *TranspositionTable) Stats() string {
	return fmt.Sprintf("hits: %v, collisions: %v, depth too low: %v, misses: %v, entries: %v",
		humanize.Comma(int64(t.Hits)), humanize.Comma(int64(t.Collisions)),
		humanize.Comma(int64(t.DepthTooLow)), humanize.Comma(int64(t.Misses)),
		humanize.Comma(int64(t.used)))
}

// HashFull is the permill of occupied slots, as reported in "info hashfull".
func (t *TranspositionTable) HashFull() int {
	return t.used * 1000 / t.Size
}

func (t *TranspositionTable) Clear() {
	for i := range t.Cache {
		t.Cache[i] = CachedEvaluation{}
	}
	t.Hits, t.Collisions, t.DepthTooLow, t.Misses, t.used = 0, 0, 0, 0, 0
}

// Lookup returns the entry for hash regardless of depth, for move ordering.
func (t *TranspositionTable) Lookup(hash uint64) Optional[CachedEvaluation] {
	v := t.Cache[hash%uint64(t.Size)]
	if v.ScoreType != NoneType && v.Hash == hash {
		return Some(v)
	}
	return Empty[CachedEvaluation]()
}

func (t *TranspositionTable) Get(hash uint64, depth int) Optional[CachedEvaluation] {
	i := hash % uint64(t.Size)
	v := t.Cache[i]
	if v.ScoreType != NoneType && v.Hash == hash {
		if v.Depth >= depth {
			t.Hits++
			return Some(v)
		} else {
			t.DepthTooLow++
		}
	} else if v.ScoreType != NoneType {
		t.Collisions++
	} else {
		t.Misses++
	}
	return Empty[CachedEvaluation]()
}

func (t *TranspositionTable) Put(hash uint64, depth int, score Score, scoreType ScoreType, move position.Move) {
	i := hash % uint64(t.Size)
	if t.Cache[i].ScoreType == NoneType {
		t.used++
	}
	t.Cache[i] = CachedEvaluation{
		Depth:     depth,
		Score:     score,
		ScoreType: scoreType,
		Move:      move,
		Hash:      hash,
	}
}
