package service

import (
	"context"
	"errors"

	"github.com/okian/comparo/internal/domain/compset"
	"github.com/okian/comparo/internal/domain/model"
	"github.com/okian/comparo/pkg/logger"
	"github.com/okian/comparo/pkg/metrics"
)

// SaveCompSet creates a comp set and returns its id.
func (s *Service) SaveCompSet(ctx context.Context, in compset.Input) (string, error) {
	cs, err := s.CreateCompSet(ctx, in)
	if err != nil {
		return "", err
	}
	return cs.ID, nil
}

// CreateCompSet creates a comp set at version 1.
func (s *Service) CreateCompSet(ctx context.Context, in compset.Input) (model.CompSet, error) {
	if err := s.running(); err != nil {
		return model.CompSet{}, err
	}
	cs, err := s.manager.Create(ctx, in)
	if err != nil {
		return model.CompSet{}, err
	}
	s.logger.Info(ctx, "comp set created",
		logger.String("compset_id", cs.ID), logger.Int("comps", len(cs.CompIDs)))
	return cs, nil
}

// GetCompSet returns a comp set by id.
func (s *Service) GetCompSet(ctx context.Context, id string) (model.CompSet, error) {
	if err := s.running(); err != nil {
		return model.CompSet{}, err
	}
	return s.manager.Get(ctx, id)
}

// UpdateCompSet replaces a comp set written at expectedVersion.
func (s *Service) UpdateCompSet(ctx context.Context, id string, expectedVersion int, in compset.Input) (model.CompSet, error) {
	if err := s.running(); err != nil {
		return model.CompSet{}, err
	}
	cs, err := s.manager.Update(ctx, id, expectedVersion, in)
	if err != nil {
		s.conflict(ctx, id, expectedVersion, err)
		return model.CompSet{}, err
	}
	return cs, nil
}

// DeleteCompSet removes a comp set written at expectedVersion.
func (s *Service) DeleteCompSet(ctx context.Context, id string, expectedVersion int) error {
	if err := s.running(); err != nil {
		return err
	}
	if err := s.manager.Delete(ctx, id, expectedVersion); err != nil {
		s.conflict(ctx, id, expectedVersion, err)
		return err
	}
	return nil
}

// ListCompSets returns the comp sets of client.
func (s *Service) ListCompSets(ctx context.Context, client string) ([]model.CompSet, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.manager.ListByClient(ctx, client)
}

func (s *Service) conflict(ctx context.Context, id string, expected int, err error) {
	if !errors.Is(err, model.ErrConflict) {
		return
	}
	metrics.RecordCompSetConflict()
	s.logger.Warn(ctx, "comp set write conflict",
		logger.String("compset_id", id), logger.Int("expected_version", expected))
}
