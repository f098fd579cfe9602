// Package reconcile brings the dataplane's LPM tables in line with a new
// aggregate.
//
// A run stages the new aggregate as the current snapshot, groups the
// current and old snapshots by family and kind, and then for each kind
// of the new aggregate reads the live table size, estimates the size the
// new ranges need, and either replaces the table or patches it with the
// difference from the old snapshot. Only when every table succeeded is
// the current snapshot promoted to old.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/psaab/gtctl/pkg/aggregate"
	"github.com/psaab/gtctl/pkg/config"
	"github.com/psaab/gtctl/pkg/lpm"
	"github.com/psaab/gtctl/pkg/metrics"
	"github.com/psaab/gtctl/pkg/render"
	"github.com/psaab/gtctl/pkg/state"
)

// Stage names a step of a run.
type Stage string

const (
	StageLoadInputs   Stage = "load-inputs"
	StageReadCapacity Stage = "read-capacity"
	StageRender       Stage = "render"
	StageTransmit     Stage = "transmit"
	StagePromote      Stage = "promote"
)

// StageError reports the step a run failed in. Family and Kind are set
// for per-table stages.
type StageError struct {
	Stage  Stage
	Family string
	Kind   string
	Err    error
}

func (e *StageError) Error() string {
	if e.Family == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s (%s, kind %q): %v", e.Stage, e.Family, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Engine runs reconciliations against one dataplane and state directory.
type Engine struct {
	cfg      *config.Config
	store    *state.Store
	client   lpm.Sender
	renderer *render.Renderer
	metrics  *metrics.Recorder
}

// New creates an Engine. rec may be nil.
func New(cfg *config.Config, store *state.Store, client lpm.Sender, rec *metrics.Recorder) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		client:   client,
		renderer: render.New(),
		metrics:  rec,
	}
}

// Process reconciles the aggregate at path. If an earlier invocation
// died before promoting its snapshot, that snapshot is reconciled first.
func (e *Engine) Process(ctx context.Context, path string) error {
	pending, err := e.store.Pending()
	if err != nil {
		return &StageError{Stage: StageLoadInputs, Err: err}
	}
	if pending {
		slog.Warn("found preexisting current aggregate file; processing",
			"path", e.store.CurrentPath())
		if err := e.Run(ctx, e.store.CurrentPath()); err != nil {
			return fmt.Errorf("recover interrupted run: %w", err)
		}
	}
	return e.Run(ctx, path)
}

// Run performs one full reconciliation of the aggregate at path.
func (e *Engine) Run(ctx context.Context, path string) (err error) {
	start := time.Now()
	log := slog.With("run", uuid.NewString())
	log.Info("reconciling aggregate", "path", path)
	defer func() {
		e.metrics.RunFinished(start, err)
		if err != nil {
			log.Error("reconciliation failed", "err", err)
		} else {
			log.Info("reconciliation done", "duration", time.Since(start))
		}
	}()

	if err := e.store.Stage(path); err != nil {
		return &StageError{Stage: StageLoadInputs, Err: err}
	}
	next, err := aggregate.Load(e.store.CurrentPath())
	if err != nil {
		return &StageError{Stage: StageLoadInputs, Err: fmt.Errorf("failed to deserialize current aggregate: %w", err)}
	}
	prev, err := aggregate.LoadOrEmpty(e.store.OldPath())
	if err != nil {
		return &StageError{Stage: StageLoadInputs, Err: fmt.Errorf("failed to deserialize old aggregate: %w", err)}
	}

	nextGroups := aggregate.NewGrouping(next)
	prevGroups := aggregate.NewGrouping(prev)
	log.Debug("grouped aggregates",
		"ipv4_kinds", len(nextGroups.IPv4), "ipv6_kinds", len(nextGroups.IPv6),
		"entries", next.Len(), "old_entries", prev.Len())

	var sent []string
	for _, family := range aggregate.Families {
		for _, kind := range nextGroups.Kinds(family) {
			t := table{
				family: family,
				kind:   kind,
				next:   nextGroups.Get(family, kind),
				prev:   prevGroups.Get(family, kind),
			}
			scripts, err := e.reconcileTable(ctx, log, t)
			sent = append(sent, scripts...)
			if err != nil {
				return err
			}
		}
	}
	log.Debug("sent scripts", "scripts", sent)

	if err := e.store.Promote(); err != nil {
		return &StageError{Stage: StagePromote, Err: err}
	}
	return nil
}

// table is one (family, kind) group.
type table struct {
	family aggregate.Family
	kind   string
	next   *aggregate.EntrySet
	prev   *aggregate.EntrySet
}

func (e *Engine) luaFunctions(f aggregate.Family) config.LuaFunctions {
	if f == aggregate.IPv6 {
		return e.cfg.LPM.IPv6
	}
	return e.cfg.LPM.IPv4
}

func (e *Engine) reconcileTable(ctx context.Context, log *slog.Logger, t table) ([]string, error) {
	proto := t.family.String()
	fail := func(stage Stage, err error) error {
		return &StageError{Stage: stage, Family: proto, Kind: t.kind, Err: err}
	}

	funcs := e.luaFunctions(t.family)
	vars := render.Vars{
		Proto:            proto,
		Kind:             t.kind,
		Table:            render.ExpandPath(e.cfg.LPM.TableFormat, proto, t.kind),
		TableConstructor: funcs.LPMTableConstructor,
		ParamsFunction:   funcs.LPMGetParamsFunction,
	}
	log = log.With("table", vars.Table)

	paramsScript, err := e.renderer.Parameters(e.cfg.LPM.ParametersScript.Input, e.cfg.LPM.ParametersScript.Output, vars)
	if err != nil {
		return nil, fail(StageRender, fmt.Errorf("failed to render parameters script: %w", err))
	}
	current, err := lpm.ReadCurrent(ctx, e.client, t.family, paramsScript)
	if err != nil {
		return nil, fail(StageReadCapacity, fmt.Errorf("failed to read lpm parameters from '%s': %w", e.cfg.Socket, err))
	}

	estimated := lpm.Estimate(t.family, t.next.Ranges())
	mode := lpm.DecideMode(current, estimated)
	log.Debug("table capacity", "current", current, "estimated", estimated, "mode", mode)

	var scripts []string
	switch mode {
	case lpm.Replace:
		log.Info("replacing table", "params", estimated)
		vars.Params = &estimated
		tpl := e.cfg.Replace
		scripts, err = e.renderer.Changes(tpl.Input, tpl.Output, tpl.MaxRangesPerFile, vars, aggregate.Full(t.next))
		if err != nil {
			return nil, fail(StageRender, fmt.Errorf("failed to render replacement script: %w", err))
		}
	case lpm.Update:
		changes := aggregate.Diff(t.prev, t.next)
		log.Info("updating table", "insert", len(changes.Insert), "remove", len(changes.Remove))
		tpl := e.cfg.Update
		scripts, err = e.renderer.Changes(tpl.Input, tpl.Output, tpl.MaxRangesPerFile, vars, changes)
		if err != nil {
			return nil, fail(StageRender, fmt.Errorf("failed to render update script: %w", err))
		}
	}
	log.Debug("rendered scripts", "scripts", scripts)

	sent := make([]string, 0, len(scripts))
	for _, script := range scripts {
		resp, err := e.client.Send(ctx, script)
		if err != nil {
			return sent, fail(StageTransmit, fmt.Errorf("failed to send script '%s': %w", script, err))
		}
		log.Debug("script applied", "script", script, "response", resp)
		sent = append(sent, script)
		e.metrics.ScriptSent(proto)
		if e.cfg.RemoveRenderedScripts {
			if err := os.Remove(script); err != nil {
				return sent, fail(StageTransmit, fmt.Errorf("remove rendered script: %w", err))
			}
		}
	}

	e.metrics.TableReconciled(proto, t.kind, mode.String(), estimated.NumRules, estimated.NumTbl8s)
	return sent, nil
}
