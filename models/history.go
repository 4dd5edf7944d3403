package models

import (
	"github.com/vigilab/vigil/pkg/ctx"
)

const historyInsertBatchSize = 500

type HistoryFloat struct {
	ItemId int64   `json:"item_id"`
	Clock  int64   `json:"clock"`
	Ns     int32   `json:"ns"`
	Value  float64 `json:"value"`
}

func (HistoryFloat) TableName() string {
	return "history_float"
}

type HistoryUint struct {
	ItemId int64  `json:"item_id"`
	Clock  int64  `json:"clock"`
	Ns     int32  `json:"ns"`
	Value  uint64 `json:"value"`
}

func (HistoryUint) TableName() string {
	return "history_uint"
}

// HistoryText stores str, text and log values alike; the column is wide
// enough for the largest normalized value.
type HistoryText struct {
	ItemId int64  `json:"item_id"`
	Clock  int64  `json:"clock"`
	Ns     int32  `json:"ns"`
	Value  string `json:"value" gorm:"type:text"`
}

func (HistoryText) TableName() string {
	return "history_text"
}

func HistoryFloatBatchInsert(ctx *ctx.Context, lst []*HistoryFloat) error {
	if len(lst) == 0 {
		return nil
	}
	return DB(ctx).CreateInBatches(lst, historyInsertBatchSize).Error
}

func HistoryUintBatchInsert(ctx *ctx.Context, lst []*HistoryUint) error {
	if len(lst) == 0 {
		return nil
	}
	return DB(ctx).CreateInBatches(lst, historyInsertBatchSize).Error
}

func HistoryTextBatchInsert(ctx *ctx.Context, lst []*HistoryText) error {
	if len(lst) == 0 {
		return nil
	}
	return DB(ctx).CreateInBatches(lst, historyInsertBatchSize).Error
}
