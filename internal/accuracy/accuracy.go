package accuracy

import "math"

// WinPercentage maps a centipawn score to the mover's expected score, 0-100.
func WinPercentage(centipawns int) float64 {
	return 50.0 + 50.0*(2.0/(1.0+math.Exp(-0.00368208*float64(centipawns)))-1.0)
}

// AccuracyForScores rates a move 0-100 from the mover's score before and
// after it was played.
func AccuracyForScores(before int, after int) float64 {
	winBefore := WinPercentage(before)
	winAfter := WinPercentage(after)
	accuracy := 103.1668*math.Exp(-0.04354*(winBefore-winAfter)) - 3.1669
	return math.Max(0, math.Min(100, accuracy))
}
