package models

import (
	"github.com/vigilab/vigil/pkg/ctx"
)

// trigger value
const (
	TriggerValueOK      = 0
	TriggerValueProblem = 1
	TriggerValueUnknown = 2
)

// recovery mode
const (
	RecoveryModeExpression         = 0 // problem expression back to zero recovers
	RecoveryModeRecoveryExpression = 1 // a separate recovery expression must hit zero
	RecoveryModeNone               = 2 // recovered elsewhere, never by evaluation
)

// problem generation mode
const (
	ProblemGenSingle   = 0
	ProblemGenMultiple = 1
)

const (
	TriggerStatusEnabled  = 0
	TriggerStatusDisabled = 1
)

type Trigger struct {
	Id                 int64  `json:"id" gorm:"primaryKey"`
	Name               string `json:"name"`
	Expression         string `json:"expression"`
	RecoveryExpression string `json:"recovery_expression"`
	RecoveryMode       int    `json:"recovery_mode"`
	ProblemGen         int    `json:"problem_gen"`
	Value              int    `json:"value"`
	Error              string `json:"error"`
	Severity           int    `json:"severity"`
	Status             int    `json:"status"`
	TopoIndex          int    `json:"topo_index"`
	LastChange         int64  `json:"last_change"`
	UpdateAt           int64  `json:"update_at"`

	// derived at cache-sync time from the expression functions, not stored
	TimeBased bool `json:"-" gorm:"-"`
}

func (Trigger) TableName() string {
	return "trigger"
}

// TriggerDep records "trigger depends on master": while the master is in
// problem or unknown state the dependent trigger must not fire.
type TriggerDep struct {
	Id        int64 `json:"id" gorm:"primaryKey"`
	TriggerId int64 `json:"trigger_id"`
	MasterId  int64 `json:"master_id"`
}

func (TriggerDep) TableName() string {
	return "trigger_dep"
}

func TriggerGetsAll(ctx *ctx.Context) ([]*Trigger, error) {
	var lst []*Trigger
	err := DB(ctx).Find(&lst).Error
	return lst, err
}

func TriggerDepGetsAll(ctx *ctx.Context) ([]*TriggerDep, error) {
	var lst []*TriggerDep
	err := DB(ctx).Find(&lst).Error
	return lst, err
}

func TriggerStatistics(ctx *ctx.Context) (*Statistics, error) {
	return StatisticsGet(ctx, &Trigger{})
}

// TriggerUpdateValue persists the outcome of one recalculation for one
// trigger. Called with diffs already sorted by trigger id, so repeated
// application stays deterministic.
func TriggerUpdateValue(ctx *ctx.Context, id int64, value int, errmsg string, lastChange int64) error {
	updates := map[string]interface{}{
		"value": value,
		"error": errmsg,
	}
	if lastChange > 0 {
		updates["last_change"] = lastChange
	}
	return DB(ctx).Model(&Trigger{}).Where("id = ?", id).Updates(updates).Error
}
