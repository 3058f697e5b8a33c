package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/flowexec/store"
	"github.com/warriorguo/flowexec/types"
	"github.com/warriorguo/flowexec/utils"
)

var (
	_ types.WaitMessageService = &WaitMessageService{}
)

// WaitMessageService stores each entity by id plus a pointer to the newest
// one of every conversation/flow/version.
type WaitMessageService struct {
	store store.Store
	now   func() time.Time
}

func NewWaitMessageService(s store.Store) *WaitMessageService {
	return &WaitMessageService{store: s, now: time.Now}
}

func (s *WaitMessageService) GetLastWaitMessage(ctx context.Context, conversationID, flowCode, flowVersion string) (*types.WaitMessageEntity, error) {
	b, err := s.store.Get(ctx, WaitMessageLastPath, waitMessageLastKey(conversationID, flowCode, flowVersion))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, nil
	}

	entity, err := s.get(ctx, string(b))
	if err != nil {
		if errors.Is(err, errors.NotFound) {
			return nil, nil
		}
		return nil, errors.Trace(err)
	}
	if entity.Handled {
		return nil, nil
	}
	if entity.Expired(s.now()) {
		log.Debugf("wait message %s of conversation %s expired", entity.ID, conversationID)
		return nil, nil
	}
	return entity, nil
}

func (s *WaitMessageService) Save(ctx context.Context, entity *types.WaitMessageEntity) error {
	if entity.ID == "" {
		entity.ID = uuid.NewString()
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = s.now()
	}
	if err := s.put(ctx, entity); err != nil {
		return errors.Trace(err)
	}

	lastKey := waitMessageLastKey(entity.ConversationID, entity.FlowCode, entity.FlowVersion)
	return errors.Trace(s.store.Set(ctx, WaitMessageLastPath, lastKey, []byte(entity.ID)))
}

func (s *WaitMessageService) Handled(ctx context.Context, id string) error {
	entity, err := s.get(ctx, id)
	if err != nil {
		return errors.Trace(err)
	}
	if entity.Handled {
		return nil
	}
	entity.Handled = true
	return errors.Trace(s.put(ctx, entity))
}

func (s *WaitMessageService) get(ctx context.Context, id string) (*types.WaitMessageEntity, error) {
	b, err := s.store.Get(ctx, WaitMessagePath, id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, errors.NotFoundf("wait message %s", id)
	}

	entity := &types.WaitMessageEntity{}
	if err := utils.Unserialize(b, entity); err != nil {
		return nil, errors.Annotatef(err, "unserialize wait message %s", id)
	}
	return entity, nil
}

func (s *WaitMessageService) put(ctx context.Context, entity *types.WaitMessageEntity) error {
	b, err := utils.Serialize(entity)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.store.Set(ctx, WaitMessagePath, entity.ID, b))
}
