package sink

import (
	"context"
	"strings"
	"time"

	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/pkg/ctx"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/toolkits/pkg/logger"
	"gorm.io/gorm"
)

// ErrTransientDown marks a commit failure caused by the store being
// unreachable. The batch is intact and must be retried, not dropped.
var ErrTransientDown = errors.New("history store temporarily unavailable")

type GormSink struct {
	ctx *ctx.Context
}

func NewGormSink(c *ctx.Context) *GormSink {
	return &GormSink{ctx: c}
}

func (g *GormSink) Commit(b *Batch) error {
	if b.Empty() {
		return nil
	}

	err := g.ctx.DB.Transaction(func(tx *gorm.DB) error {
		tctx := ctx.NewContext(context.Background(), tx)

		if err := models.HistoryFloatBatchInsert(tctx, b.Floats); err != nil {
			return errors.WithMessage(err, "failed to insert float history")
		}
		if err := models.HistoryUintBatchInsert(tctx, b.Uints); err != nil {
			return errors.WithMessage(err, "failed to insert uint history")
		}
		if err := models.HistoryTextBatchInsert(tctx, b.Texts); err != nil {
			return errors.WithMessage(err, "failed to insert text history")
		}

		for _, t := range b.TrendFloats {
			if err := models.TrendFloatInsert(tctx, t); err != nil {
				return errors.WithMessage(err, "failed to insert float trend")
			}
		}
		for _, t := range b.TrendUints {
			if err := models.TrendUintInsert(tctx, t); err != nil {
				return errors.WithMessage(err, "failed to insert uint trend")
			}
		}

		for _, d := range b.TriggerDiffs {
			if err := models.TriggerUpdateValue(tctx, d.TriggerId, d.Value, d.Error, d.LastChange); err != nil {
				return errors.WithMessage(err, "failed to update trigger value")
			}
		}

		for _, c := range b.ItemChanges {
			if err := models.ItemUpdateState(tctx, c.Item.Id, uint8(c.State), c.Error); err != nil {
				return errors.WithMessage(err, "failed to update item state")
			}
		}

		if err := models.EventBatchInsert(tctx, b.Events); err != nil {
			return errors.WithMessage(err, "failed to insert events")
		}

		return nil
	})

	if err == nil {
		return nil
	}

	if isTransient(err) {
		return errors.WithMessage(ErrTransientDown, err.Error())
	}
	return err
}

// isTransient matches the failure modes that clear up on their own. Anything
// else is a data or schema problem retrying cannot fix.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"invalid connection",
		"broken pipe",
		"bad connection",
		"i/o timeout",
		"too many connections",
		"deadlock",
		"try restarting transaction",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// CommitRetry commits a batch and keeps retrying while the store is down:
// no backoff, no retry cap, the data must not be dropped. It only gives up
// when the error is not transient or stop is closed.
func CommitRetry(s Sink, b *Batch, retries prometheus.Counter, stop <-chan struct{}) error {
	const interval = time.Second

	for {
		err := s.Commit(b)
		if err == nil {
			return nil
		}

		if !errors.Is(err, ErrTransientDown) {
			return err
		}

		logger.Errorf("failed to commit batch, retrying in %s: %v", interval, err)
		if retries != nil {
			retries.Inc()
		}

		select {
		case <-stop:
			return err
		case <-time.After(interval):
		}
	}
}
