package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"

	. "github.com/cricklet/chessuci/internal/helpers"
	"github.com/cricklet/chessuci/internal/position"
	"github.com/cricklet/chessuci/internal/search"
)

var errGraceExpired = errors.New("search did not return within the grace period")

// searchJob is the single background search slot. The supervisor owns the
// deadline, the ponderhit signal and the grace timer.
type searchJob struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool

	request   search.Request
	budget    Optional[time.Duration]
	infinite  bool
	pondering bool

	ponderhit     chan struct{}
	ponderhitOnce sync.Once
	done          chan struct{}

	// guards everything below; held while emitting info and bestmove
	mu        sync.Mutex
	finished  bool
	lastDepth int
	lastNodes int
	bestPV    []position.Move
	bestScore Optional[search.Score]
}

type outcome struct {
	result search.Result
	err    error
}

func newSearchJob(parent context.Context, request search.Request, budget Optional[time.Duration]) *searchJob {
	ctx, cancel := context.WithCancel(parent)
	return &searchJob{
		ctx:       ctx,
		cancel:    cancel,
		request:   request,
		budget:    budget,
		infinite:  request.Limits.Infinite,
		pondering: request.Limits.Ponder,
		ponderhit: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (j *searchJob) stop() {
	j.cancelled.Store(true)
	j.cancel()
}

func (j *searchJob) isCancelled() bool {
	return j.cancelled.Load()
}

func (j *searchJob) ponderHit() {
	j.ponderhitOnce.Do(func() { close(j.ponderhit) })
}

func (e *Engine[S, E, T]) runSearch(job *searchJob, warm <-chan struct{}, results chan<- outcome) {
	defer func() {
		if r := recover(); r != nil {
			results <- outcome{err: recovered("searcher", r)}
		}
	}()

	if warm != nil {
		select {
		case <-warm:
		case <-job.ctx.Done():
		}
	}

	report := func(p search.Progress) {
		e.report(job, p)
	}
	result, err := e.searcher.Search(job.ctx, job.request, e.evaluator, report)
	results <- outcome{result: result, err: err}
}

// report forwards a progress snapshot unless it regresses in depth or the
// bestmove was already sent.
func (e *Engine[S, E, T]) report(job *searchJob, p search.Progress) {
	job.mu.Lock()
	defer job.mu.Unlock()
	if job.finished || p.Depth < job.lastDepth {
		return
	}
	job.lastDepth = p.Depth
	job.lastNodes = p.Nodes
	if len(p.PV) > 0 {
		job.bestPV = append([]position.Move{}, p.PV...)
		job.bestScore = Some(p.Score)
	}
	if e.debug.Load() {
		e.settings.logger.Println(spew.Sdump(p))
	}
	e.send(p.Info())
}

func (e *Engine[S, E, T]) supervise(job *searchJob, results <-chan outcome) {
	var deadline <-chan time.Time
	var timer *time.Timer
	startClock := func() {
		if job.budget.HasValue() {
			timer = time.NewTimer(job.budget.Value())
			deadline = timer.C
		}
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	// while pondering the clock starts on ponderhit
	ponderhit := job.ponderhit
	hold := job.infinite || job.pondering
	if !job.pondering {
		ponderhit = nil
		startClock()
	}

	var held *outcome
	for {
		select {
		case o := <-results:
			results = nil
			if hold && !job.isCancelled() {
				held = &o
				continue
			}
			e.finish(job, o)
			return

		case <-deadline:
			deadline = nil
			job.stop()

		case <-ponderhit:
			ponderhit = nil
			hold = job.infinite
			if held != nil && !hold {
				e.finish(job, *held)
				return
			}
			startClock()

		case <-job.ctx.Done():
			if held != nil {
				e.finish(job, *held)
				return
			}
			grace := time.NewTimer(e.settings.gracePeriod)
			defer grace.Stop()
			select {
			case o := <-results:
				e.finish(job, o)
			case <-grace.C:
				e.finish(job, outcome{err: errGraceExpired})
			}
			return
		}
	}
}

// finish emits exactly one bestmove for the job and returns the engine to
// idle.
func (e *Engine[S, E, T]) finish(job *searchJob, o outcome) {
	e.mu.Lock()
	job.mu.Lock()
	job.finished = true

	var failure error
	result := o.result
	if o.err != nil {
		failure = &CapabilityFailure{Capability: "searcher", Err: o.err}
		result = e.fallback(job)
	} else if !e.acceptable(job, result) {
		failure = &CapabilityFailure{Capability: "searcher", Err: fmt.Errorf("returned unusable move %v", result.BestMove)}
		result = e.fallback(job)
	}
	result.Ponder = validPonder(job.request.Position, result)
	if failure != nil {
		e.announce(failure)
	}

	e.send(result.BestMoveResponse())
	e.settings.logger.Printf("bestmove %v at depth %v after %v nodes",
		result.BestMove, job.lastDepth, humanize.Comma(int64(job.lastNodes)))
	job.mu.Unlock()

	if e.job == job {
		e.job = nil
		if e.state.busy() {
			e.state = Idle
		}
	}
	e.mu.Unlock()

	if failure != nil {
		e.notify(failure)
	}
	job.cancel()
	close(job.done)
}

// acceptable is false for illegal moves, or a null move when legal moves exist.
func (e *Engine[S, E, T]) acceptable(job *searchJob, result search.Result) bool {
	root := job.request.Position
	if result.BestMove.IsNull() {
		return len(root.LegalMoves()) == 0
	}
	return root.IsLegal(result.BestMove)
}

// fallback uses the best reported line, else the first legal move, else 0000.
func (e *Engine[S, E, T]) fallback(job *searchJob) search.Result {
	root := job.request.Position
	if len(job.bestPV) > 0 && root.IsLegal(job.bestPV[0]) {
		return search.ResultFromPV(job.bestPV, job.bestScore)
	}
	if moves := job.request.Limits.RootMoves(root); len(moves) > 0 {
		return search.Result{BestMove: moves[0]}
	}
	return search.Result{BestMove: position.NullMove}
}

func validPonder(root position.Position, result search.Result) Optional[position.Move] {
	if result.Ponder.IsEmpty() || result.BestMove.IsNull() {
		return Empty[position.Move]()
	}
	next, err := root.Apply(result.BestMove)
	if err != nil || !next.IsLegal(result.Ponder.Value()) {
		return Empty[position.Move]()
	}
	return result.Ponder
}
