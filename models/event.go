package models

import (
	"github.com/vigilab/vigil/pkg/ctx"
)

const (
	EventSourceTrigger  = 0
	EventSourceInternal = 3
)

const (
	EventObjectTrigger = 0
	EventObjectItem    = 4
)

type Event struct {
	Id       int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Source   int    `json:"source"`
	Object   int    `json:"object"`
	ObjectId int64  `json:"object_id"`
	Clock    int64  `json:"clock"`
	Ns       int32  `json:"ns"`
	Value    int    `json:"value"`
	Name     string `json:"name"`
	Severity int    `json:"severity"`
}

func (Event) TableName() string {
	return "event"
}

func EventBatchInsert(ctx *ctx.Context, lst []*Event) error {
	if len(lst) == 0 {
		return nil
	}
	return DB(ctx).CreateInBatches(lst, 500).Error
}

// Proxy tracks the data-collection proxies; LastAccess is bumped whenever a
// flush cycle touches one of the proxy's items, feeding the no-data checks.
type Proxy struct {
	Id         int64  `json:"id" gorm:"primaryKey"`
	Name       string `json:"name"`
	LastAccess int64  `json:"last_access"`
}

func (Proxy) TableName() string {
	return "proxy"
}

func ProxyUpdateLastAccess(ctx *ctx.Context, ids []int64, ts int64) error {
	if len(ids) == 0 {
		return nil
	}
	return DB(ctx).Model(&Proxy{}).Where("id in ?", ids).
		Update("last_access", ts).Error
}
