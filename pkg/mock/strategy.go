package mock

import (
	"context"
	"sync"

	"github.com/radiofrance/rollo/pkg/types"
)

// Strategy records every rollout it is asked to perform.
type Strategy struct {
	StrategyName string
	Rollouts     []types.RolloutOptions
	Error        error
	Lock         sync.Locker
}

func NewStrategy(name string) *Strategy {
	return &Strategy{
		StrategyName: name,
		Lock:         new(sync.Mutex),
	}
}

func (s *Strategy) Name() string {
	return s.StrategyName
}

func (s *Strategy) Rollout(_ context.Context, opts types.RolloutOptions) error {
	s.Lock.Lock()
	defer s.Lock.Unlock()

	s.Rollouts = append(s.Rollouts, opts)
	return s.Error
}
