package storage

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customMediumCreators = make(map[string]types.StorageMediumCreator)

func RegisterStorageMedium(mediumType string, creator types.StorageMediumCreator) {
	customMediumCreators[mediumType] = creator
}

func NewStorageMedium(ctx context.Context, config types.ConfigManager, logger types.Logger) (types.StorageMedium, error) {
	storageConfig := config.GetConfig().Storage
	if storageConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	mediumType := storageConfig.Type

	var impl types.StorageMedium
	var err error

	switch mediumType {
	case "memory":
		impl, err = NewMemoryMedium(ctx, logger, storageConfig)
	case "redis":
		impl, err = NewRedisMedium(ctx, logger, storageConfig)
	case "sqlite":
		impl, err = NewSQLiteMedium(ctx, logger, storageConfig)
	case "clover":
		impl, err = NewCloverMedium(ctx, logger, storageConfig)
	default:
		if creator, exists := customMediumCreators[mediumType]; exists {
			impl, err = creator(storageConfig)
		} else {
			return nil, types.Errorf(types.ErrStorageTypeUnknown, "type: %s", mediumType)
		}
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedMedium(logger, impl), nil
}

type instrumentedMedium struct {
	impl   types.StorageMedium
	logger types.Logger
	state  atomic.Value
}

func newInstrumentedMedium(logger types.Logger, impl types.StorageMedium) types.StorageMedium {
	instrumented := &instrumentedMedium{
		impl:   impl,
		logger: logger,
	}

	instrumented.state.Store(StateStopped)
	return instrumented
}

func (im *instrumentedMedium) Start() error {
	if !im.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if im.getState() == StateStarting {
			im.setState(StateRunning)
		}
	}()

	err := im.impl.Start()
	if err != nil {
		im.setState(StateStopped)
		return err
	}

	im.logger.Info("Storage medium started")
	return nil
}

func (im *instrumentedMedium) Stop() error {
	if !im.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		im.setState(StateStopped)
	}()

	err := im.impl.Stop()
	if err != nil {
		im.logger.Error("Failed to stop storage medium", zap.Error(err))
		return err
	}

	im.logger.Info("Storage medium stopped gracefully")
	return nil
}

func (im *instrumentedMedium) IsRunning() bool {
	return im.getState() == StateRunning
}

func (im *instrumentedMedium) Get(key string) (string, error) {
	return im.impl.Get(key)
}

func (im *instrumentedMedium) Set(key string, value string) error {
	return im.impl.Set(key, value)
}

func (im *instrumentedMedium) Remove(key string) error {
	return im.impl.Remove(key)
}

func (im *instrumentedMedium) Keys(prefix string) ([]string, error) {
	return im.impl.Keys(prefix)
}

func (im *instrumentedMedium) getState() State {
	return im.state.Load().(State)
}

func (im *instrumentedMedium) setState(newState State) bool {
	currentState := im.getState()
	return im.state.CompareAndSwap(currentState, newState)
}

func (im *instrumentedMedium) transitionState(from, to State) bool {
	return im.state.CompareAndSwap(from, to)
}
