package recalc

import (
	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/pkg/parser"

	lru "github.com/hashicorp/golang-lru"
)

// ExprCache keeps compiled expressions keyed by their text. Parse failures
// are cached too, a broken expression must not be re-parsed on every batch.
type ExprCache struct {
	lru *lru.Cache
}

type exprEntry struct {
	exp *parser.Expression
	err error
}

func NewExprCache(size int) *ExprCache {
	c, _ := lru.New(size)
	return &ExprCache{lru: c}
}

func (c *ExprCache) Get(text string) (*parser.Expression, error) {
	if v, has := c.lru.Get(text); has {
		e := v.(*exprEntry)
		return e.exp, e.err
	}

	exp, err := parser.Parse(text)
	c.lru.Add(text, &exprEntry{exp: exp, err: err})
	return exp, err
}

// per-context lazy-initialization flags: init means attempted, done means
// the cached result is valid. init without done marks a failure that must
// not be retried within this context's lifetime.
const (
	ctxProblemInit uint8 = 1 << iota
	ctxProblemDone
	ctxRecoveryInit
	ctxRecoveryDone
	ctxHostsInit
	ctxHostsDone
)

// evalCtx is the per-trigger evaluation state of one recalculation pass.
// A fresh context is built per pass, the flags only dedupe work inside it.
type evalCtx struct {
	trigger *models.Trigger
	flags   uint8

	problem     *parser.Expression
	problemErr  error
	recovery    *parser.Expression
	recoveryErr error
	hostIds     []int64
}

func newEvalCtx(t *models.Trigger) *evalCtx {
	return &evalCtx{trigger: t}
}

func (c *evalCtx) Problem(exprs *ExprCache) (*parser.Expression, error) {
	if c.flags&ctxProblemInit == 0 {
		c.flags |= ctxProblemInit
		c.problem, c.problemErr = exprs.Get(c.trigger.Expression)
		if c.problemErr == nil {
			c.flags |= ctxProblemDone
		}
	}
	return c.problem, c.problemErr
}

func (c *evalCtx) Recovery(exprs *ExprCache) (*parser.Expression, error) {
	if c.flags&ctxRecoveryInit == 0 {
		c.flags |= ctxRecoveryInit
		c.recovery, c.recoveryErr = exprs.Get(c.trigger.RecoveryExpression)
		if c.recoveryErr == nil {
			c.flags |= ctxRecoveryDone
		}
	}
	return c.recovery, c.recoveryErr
}

// Hosts resolves the host ids behind the items the trigger references,
// which scopes user-macro expansion of function parameters.
func (c *evalCtx) Hosts(exprs *ExprCache, items ItemIndex) []int64 {
	if c.flags&ctxHostsInit != 0 {
		return c.hostIds
	}
	c.flags |= ctxHostsInit

	exp, err := c.Problem(exprs)
	if err != nil {
		return nil
	}

	seen := make(map[int64]struct{})
	collect := func(e *parser.Expression) {
		for _, itemID := range e.ItemIDs() {
			item, has := items.Get(itemID)
			if !has {
				continue
			}
			if _, dup := seen[item.HostId]; dup {
				continue
			}
			seen[item.HostId] = struct{}{}
			c.hostIds = append(c.hostIds, item.HostId)
		}
	}

	collect(exp)
	if c.trigger.RecoveryMode == models.RecoveryModeRecoveryExpression {
		if rexp, err := c.Recovery(exprs); err == nil {
			collect(rexp)
		}
	}

	c.flags |= ctxHostsDone
	return c.hostIds
}
