// Package recalc re-evaluates exactly the triggers affected by a batch of
// fresh samples or by due timers, and turns the outcomes into trigger-row
// diffs and events. Evaluation errors stay on the trigger (state Unknown),
// they never abort the pass.
package recalc

import (
	"sort"
	"sync"

	"github.com/vigilab/vigil/hist/hstats"
	"github.com/vigilab/vigil/hist/sink"
	"github.com/vigilab/vigil/models"

	"github.com/toolkits/pkg/logger"
)

const masterBlockedError = "There are master trigger(s) in PROBLEM or UNKNOWN state"

// TriggerIndex is the slice of the trigger cache the engine needs: lookup
// by id, the item->trigger index and the dependency edges.
type TriggerIndex interface {
	Get(triggerId int64) (*models.Trigger, bool)
	GetByItemIds(ids []int64) []*models.Trigger
	Masters(triggerId int64) []int64
}

// ItemIndex resolves items to their hosts for macro scoping.
type ItemIndex interface {
	Get(itemId int64) (*models.Item, bool)
}

// MacroExpander substitutes user macros in function parameters.
type MacroExpander interface {
	ExpandParams(params []string, hostIds []int64) []string
}

// Locks is the cross-shard set of triggers currently being evaluated. A
// trigger whose items span two shards must not be recalculated twice at
// once.
type Locks struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func NewLocks() *Locks {
	return &Locks{held: make(map[int64]struct{})}
}

// TryLock acquires the given triggers, returning the acquired subset. The
// rest is busy on another shard and gets skipped this cycle.
func (l *Locks) TryLock(ids []int64) []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	acquired := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, busy := l.held[id]; busy {
			continue
		}
		l.held[id] = struct{}{}
		acquired = append(acquired, id)
	}
	return acquired
}

func (l *Locks) Unlock(ids []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		delete(l.held, id)
	}
}

// Result is everything one recalculation pass decided. Diffs are sorted by
// trigger id; a diff exists for every evaluated trigger, value change or
// not.
type Result struct {
	Diffs       []sink.TriggerDiff
	Events      []*models.Event
	Triggers    int
	MaxSeverity int
}

type Engine struct {
	shard    string
	triggers TriggerIndex
	items    ItemIndex
	macros   MacroExpander
	funcs    *Funcs
	exprs    *ExprCache
	locks    *Locks
	stats    *hstats.Stats
}

func NewEngine(shard string, triggers TriggerIndex, items ItemIndex,
	macros MacroExpander, funcs *Funcs, exprs *ExprCache, locks *Locks, stats *hstats.Stats) *Engine {
	return &Engine{
		shard:    shard,
		triggers: triggers,
		items:    items,
		macros:   macros,
		funcs:    funcs,
		exprs:    exprs,
		locks:    locks,
		stats:    stats,
	}
}

// Recalc evaluates the triggers touched by the changed items and the due
// timers. skipped reports how many candidates were busy on other shards.
func (e *Engine) Recalc(changedItemIds []int64, dueTimers []int64, now int64) (res *Result, skipped int) {
	res = &Result{}

	candidates := e.selectCandidates(changedItemIds, dueTimers)
	if len(candidates) == 0 {
		return res, 0
	}

	ids := make([]int64, len(candidates))
	for i, t := range candidates {
		ids[i] = t.Id
	}

	acquired := e.locks.TryLock(ids)
	defer e.locks.Unlock(acquired)

	skipped = len(ids) - len(acquired)

	mine := make(map[int64]struct{}, len(acquired))
	for _, id := range acquired {
		mine[id] = struct{}{}
	}

	ctxs := make([]*evalCtx, 0, len(acquired))
	for _, t := range candidates {
		if _, ok := mine[t.Id]; ok {
			ctxs = append(ctxs, newEvalCtx(t))
		}
	}

	// dependency order: masters first, ties by id for determinism
	sort.Slice(ctxs, func(i, j int) bool {
		a, b := ctxs[i].trigger, ctxs[j].trigger
		if a.TopoIndex != b.TopoIndex {
			return a.TopoIndex < b.TopoIndex
		}
		return a.Id < b.Id
	})

	// values decided in this pass override the cached trigger values for
	// the dependency checks of later (dependent) triggers
	decided := make(map[int64]int, len(ctxs))

	for _, c := range ctxs {
		value, errmsg := e.evaluate(c)
		e.process(c, value, errmsg, now, decided, res)
		e.stats.CounterTriggersTotal.WithLabelValues(e.shard).Inc()
	}

	sort.Slice(res.Diffs, func(i, j int) bool {
		return res.Diffs[i].TriggerId < res.Diffs[j].TriggerId
	})

	res.Triggers = len(ctxs)
	return res, skipped
}

// selectCandidates resolves the triggers referencing any changed item, plus
// the timer-driven ones, deduplicated by trigger id. Triggers with an empty
// problem expression never become candidates.
func (e *Engine) selectCandidates(changedItemIds []int64, dueTimers []int64) []*models.Trigger {
	seen := make(map[int64]struct{})
	var out []*models.Trigger

	add := func(t *models.Trigger) {
		if t.Expression == "" {
			return
		}
		if _, has := seen[t.Id]; has {
			return
		}
		seen[t.Id] = struct{}{}
		out = append(out, t)
	}

	for _, t := range e.triggers.GetByItemIds(changedItemIds) {
		add(t)
	}

	for _, id := range dueTimers {
		if t, has := e.triggers.Get(id); has {
			add(t)
		}
	}

	return out
}

// evaluate runs the problem expression and applies the recovery mode. Any
// error yields Unknown with the error recorded, never a failure of the
// pass.
func (e *Engine) evaluate(c *evalCtx) (int, string) {
	exp, err := c.Problem(e.exprs)
	if err != nil {
		return models.TriggerValueUnknown, err.Error()
	}

	hostIds := c.Hosts(e.exprs, e.items)
	eval := func(name string, itemID int64, params []string) (float64, error) {
		return e.funcs.Eval(name, itemID, e.macros.ExpandParams(params, hostIds))
	}

	v, err := exp.Execute(eval)
	if err != nil {
		return models.TriggerValueUnknown, err.Error()
	}

	if v != 0 {
		return models.TriggerValueProblem, ""
	}

	switch c.trigger.RecoveryMode {
	case models.RecoveryModeExpression:
		return models.TriggerValueOK, ""

	case models.RecoveryModeRecoveryExpression:
		if c.trigger.Value == models.TriggerValueOK {
			return models.TriggerValueOK, ""
		}

		rexp, err := c.Recovery(e.exprs)
		if err != nil {
			return models.TriggerValueUnknown, err.Error()
		}

		rv, err := rexp.Execute(eval)
		if err != nil {
			return models.TriggerValueUnknown, err.Error()
		}

		if rv == 0 {
			return models.TriggerValueOK, ""
		}
		// not recovered, the previous value stands
		return c.trigger.Value, ""

	case models.RecoveryModeNone:
		if c.trigger.Value == models.TriggerValueProblem {
			return models.TriggerValueProblem, ""
		}
		return models.TriggerValueOK, ""
	}

	logger.Warningf("trigger %d: unknown recovery mode %d", c.trigger.Id, c.trigger.RecoveryMode)
	return models.TriggerValueUnknown, "unknown recovery mode"
}

// process applies the dependency override, appends the diff and emits
// events per the state transition table.
func (e *Engine) process(c *evalCtx, value int, errmsg string, now int64, decided map[int64]int, res *Result) {
	t := c.trigger

	if e.mastersBlocked(t.Id, decided, make(map[int64]struct{})) {
		value = models.TriggerValueUnknown
		errmsg = masterBlockedError
	}

	prev := t.Value

	var lastChange int64
	if prev != value {
		lastChange = now
	}

	res.Diffs = append(res.Diffs, sink.TriggerDiff{
		TriggerId:  t.Id,
		OldValue:   prev,
		Value:      value,
		OldError:   t.Error,
		Error:      errmsg,
		Severity:   t.Severity,
		LastChange: lastChange,
	})

	triggerEvent, internalEvent := eventsFor(prev, value, t.ProblemGen)

	if triggerEvent {
		res.Events = append(res.Events, &models.Event{
			Source:   models.EventSourceTrigger,
			Object:   models.EventObjectTrigger,
			ObjectId: t.Id,
			Clock:    now,
			Value:    value,
			Name:     t.Name,
			Severity: t.Severity,
		})
	}

	if internalEvent {
		res.Events = append(res.Events, &models.Event{
			Source:   models.EventSourceInternal,
			Object:   models.EventObjectTrigger,
			ObjectId: t.Id,
			Clock:    now,
			Value:    value,
			Name:     errmsg,
		})
	}

	if value == models.TriggerValueProblem && t.Severity > res.MaxSeverity {
		res.MaxSeverity = t.Severity
	}

	// keep the cached trigger current until the next DB sync
	t.Value = value
	t.Error = errmsg
	if lastChange > 0 {
		t.LastChange = lastChange
	}

	decided[t.Id] = value
}

// mastersBlocked walks the dependency edges upward. Values decided earlier
// in this pass win over the cached ones, topological order guarantees the
// masters went first.
func (e *Engine) mastersBlocked(triggerId int64, decided map[int64]int, visited map[int64]struct{}) bool {
	if _, has := visited[triggerId]; has {
		return false
	}
	visited[triggerId] = struct{}{}

	for _, masterId := range e.triggers.Masters(triggerId) {
		value, has := decided[masterId]
		if !has {
			master, ok := e.triggers.Get(masterId)
			if !ok {
				continue
			}
			value = master.Value
		}

		if value == models.TriggerValueProblem || value == models.TriggerValueUnknown {
			return true
		}

		if e.mastersBlocked(masterId, decided, visited) {
			return true
		}
	}
	return false
}

// eventsFor implements the state transition table: which of (trigger event,
// internal event) a prev->new transition emits.
func eventsFor(prev, value, problemGen int) (triggerEvent, internalEvent bool) {
	switch prev {
	case models.TriggerValueOK:
		switch value {
		case models.TriggerValueUnknown:
			return false, true
		case models.TriggerValueProblem:
			return true, false
		}
	case models.TriggerValueUnknown:
		switch value {
		case models.TriggerValueOK:
			return true, true
		case models.TriggerValueProblem:
			return true, true
		}
	case models.TriggerValueProblem:
		switch value {
		case models.TriggerValueOK:
			return true, false
		case models.TriggerValueUnknown:
			return false, true
		case models.TriggerValueProblem:
			return problemGen == models.ProblemGenMultiple, false
		}
	}
	return false, false
}
