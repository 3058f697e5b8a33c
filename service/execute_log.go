package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/warriorguo/flowexec/store"
	"github.com/warriorguo/flowexec/types"
	"github.com/warriorguo/flowexec/utils"
)

var (
	_ types.ExecuteLogService = &ExecuteLogService{}
)

type ExecuteLogService struct {
	store store.Store
}

func NewExecuteLogService(s store.Store) *ExecuteLogService {
	return &ExecuteLogService{store: s}
}

func (s *ExecuteLogService) Create(ctx context.Context, log *types.ExecuteLogEntity) (string, error) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	now := time.Now()
	log.CreatedAt = now
	log.UpdatedAt = now

	if err := s.save(ctx, log); err != nil {
		return "", errors.Trace(err)
	}
	return log.ID, nil
}

func (s *ExecuteLogService) UpdateStatus(ctx context.Context, log *types.ExecuteLogEntity) error {
	if log.ID == "" {
		return errors.BadRequestf("execute log without id")
	}
	log.UpdatedAt = time.Now()
	return errors.Trace(s.save(ctx, log))
}

func (s *ExecuteLogService) Get(ctx context.Context, id string) (*types.ExecuteLogEntity, error) {
	b, err := s.store.Get(ctx, ExecuteLogPath, id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, errors.NotFoundf("execute log %s", id)
	}

	log := &types.ExecuteLogEntity{}
	if err := utils.Unserialize(b, log); err != nil {
		return nil, errors.Annotatef(err, "unserialize execute log %s", id)
	}
	return log, nil
}

func (s *ExecuteLogService) save(ctx context.Context, log *types.ExecuteLogEntity) error {
	b, err := utils.Serialize(log)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.store.Set(ctx, ExecuteLogPath, log.ID, b))
}
