package strategy

import (
	"context"
	"log/slog"
	"sort"

	"github.com/cadenzahq/cadenza/pkg/errors"
	"github.com/cadenzahq/cadenza/pkg/orchestrator"
)

// ErrNoApplicableStrategy is returned by Evaluate when no strategy matches
// the situation and the catalog has no fallback. Callers must treat it as a
// "cannot determine how to proceed" outcome rather than retry the same
// situation unchanged.
var ErrNoApplicableStrategy = errors.New("no applicable strategy")

// Engine selects and executes strategies from an immutable catalog.
type Engine struct {
	catalog   *Catalog
	evaluator *Evaluator
	compiler  *Compiler
	logger    *slog.Logger
}

// Option configures a strategy engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEvaluator replaces the default condition evaluator.
func WithEvaluator(ev *Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithCompiler replaces the default action compiler.
func WithCompiler(c *Compiler) Option {
	return func(e *Engine) {
		e.compiler = c
	}
}

// New creates a strategy engine over the given catalog.
func New(catalog *Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog:   catalog,
		evaluator: NewEvaluator(),
		compiler:  NewCompiler(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns the single best-matching strategy for the situation: the
// applicable strategy with the lowest priority number, ties broken by
// catalog load order. The stable tie-break is deliberate and load-bearing;
// strategies registered earlier win. When nothing applies, the catalog
// fallback is returned if present, otherwise ErrNoApplicableStrategy.
func (e *Engine) Evaluate(s *Situation) (*Strategy, error) {
	var applicable []*Strategy
	for i := range e.catalog.Strategies {
		st := &e.catalog.Strategies[i]
		ok, err := e.evaluator.Applicable(st, s)
		if err != nil {
			// A broken condition disqualifies its strategy but must not
			// block the rest of the catalog.
			e.logger.Warn("strategy condition evaluation failed",
				"strategy", st.ID,
				"error", err,
			)
			continue
		}
		if ok {
			applicable = append(applicable, st)
		}
	}

	if len(applicable) == 0 {
		if e.catalog.Fallback != nil {
			e.logger.Debug("no strategy applicable, using fallback",
				"fallback", e.catalog.Fallback.ID,
			)
			return e.catalog.Fallback, nil
		}
		return nil, ErrNoApplicableStrategy
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Priority < applicable[j].Priority
	})

	selected := applicable[0]
	e.logger.Debug("strategy selected",
		"strategy", selected.ID,
		"priority", selected.Priority,
		"applicable", len(applicable),
	)
	return selected, nil
}

// Compile turns the strategy's declarative actions into executor
// instructions, one per action, in action order.
func (e *Engine) Compile(st *Strategy, s *Situation) []Instruction {
	return e.compiler.Compile(st, s)
}

// Execute compiles the strategy and drives the instructions through the
// orchestrator imperatively, one after another, bypassing the registered
// graph abstraction. Each result is recorded under the instruction's
// ResultKey. The first failure aborts the run; the failed instance stays
// queryable. The workflow ID is returned either way.
func (e *Engine) Execute(ctx context.Context, orch *orchestrator.Engine, st *Strategy, s *Situation, metadata map[string]any) (string, error) {
	instructions := e.Compile(st, s)

	inst := orch.Begin("strategy:"+st.ID, s.ToInput(), metadata)

	pending := make([]string, len(instructions))
	for i, ins := range instructions {
		pending[i] = ins.Action
	}
	inst.SetPending(pending)

	var runErr error
	for _, ins := range instructions {
		if _, err := orch.Dispatch(ctx, inst, ins.ExecutorID, ins.Action, ins.Params, ins.ResultKey); err != nil {
			runErr = err
			break
		}
		inst.MarkCompleted(ins.Action)
	}

	orch.Finish(inst, runErr)
	return inst.ID, runErr
}

// Run evaluates the situation and executes the selected strategy. It is the
// one-call surface for callers that do not need to inspect the strategy
// before running it.
func (e *Engine) Run(ctx context.Context, orch *orchestrator.Engine, s *Situation, metadata map[string]any) (string, error) {
	st, err := e.Evaluate(s)
	if err != nil {
		return "", err
	}
	return e.Execute(ctx, orch, st, s, metadata)
}
