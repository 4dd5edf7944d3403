// Package idents tracks which proxies delivered samples recently. The sync
// loop marks a proxy on every batch that touched one of its items; the
// marks are persisted once per second in one batched update, feeding the
// proxy no-data checks.
package idents

import (
	"sync"
	"time"

	"github.com/vigilab/vigil/models"
	"github.com/vigilab/vigil/pkg/ctx"

	"github.com/toolkits/pkg/logger"
)

const persistBatchSize = 100

type Set struct {
	sync.Mutex
	items map[int64]struct{}
	ctx   *ctx.Context
}

func New(ctx *ctx.Context) *Set {
	set := &Set{
		items: make(map[int64]struct{}),
		ctx:   ctx,
	}
	go set.LoopPersist()
	return set
}

func (s *Set) MSet(proxyIds []int64) {
	if len(proxyIds) == 0 {
		return
	}

	s.Lock()
	defer s.Unlock()
	for _, id := range proxyIds {
		s.items[id] = struct{}{}
	}
}

func (s *Set) LoopPersist() {
	for {
		time.Sleep(time.Second)
		s.persist()
	}
}

func (s *Set) persist() {
	s.Lock()
	if len(s.items) == 0 {
		s.Unlock()
		return
	}

	items := s.items
	s.items = make(map[int64]struct{})
	s.Unlock()

	now := time.Now().Unix()
	lst := make([]int64, 0, persistBatchSize)

	for id := range items {
		lst = append(lst, id)
		if len(lst) == persistBatchSize {
			s.updateLastAccess(lst, now)
			lst = lst[:0]
		}
	}
	s.updateLastAccess(lst, now)
}

func (s *Set) updateLastAccess(ids []int64, now int64) {
	if len(ids) == 0 {
		return
	}
	if err := models.ProxyUpdateLastAccess(s.ctx, ids, now); err != nil {
		logger.Errorf("failed to update proxy last access: %v", err)
	}
}
