package engine

import (
	"github.com/cricklet/chessuci/internal/config"
	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/search"
)

// Reference is the engine built from the bundled capabilities.
type Reference = Engine[*search.AlphaBeta, *search.MaterialEvaluator, search.DefaultTimeManager]

// NewReference builds the bundled engine from cfg. opts are applied after
// the configured ones.
func NewReference(cfg *config.EngineConfig, logger Logger, opts ...Option) *Reference {
	timeManager := search.NewDefaultTimeManager()
	return New(search.NewAlphaBeta(cfg.MaxDepth, logger), &search.MaterialEvaluator{}, timeManager,
		append([]Option{
			WithIdentity(cfg.Name, cfg.Author),
			WithGracePeriod(cfg.GracePeriod),
			WithLogger(logger),
			WithDefaultHash(cfg.HashMB),
			WithMoveOverhead(cfg.MoveOverhead),
		}, opts...)...)
}
