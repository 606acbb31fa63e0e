package storage

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const DefaultMemoryCapacity = 5 * 1024 * 1024

type MemoryConfig struct {
	// MaxBytes bounds the summed size of stored keys and values.
	// Zero means DefaultMemoryCapacity; a negative value disables the bound.
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
}

type MemoryMedium struct {
	logger types.Logger
	config *MemoryConfig
	data   map[string]string
	used   int64
	mu     sync.RWMutex
	state  atomic.Value
}

func NewMemoryMedium(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.StorageMedium, error) {
	memConfig := &MemoryConfig{
		MaxBytes: DefaultMemoryCapacity,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, memConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory storage config")
		}
	}

	if memConfig.MaxBytes == 0 {
		memConfig.MaxBytes = DefaultMemoryCapacity
	}

	medium := &MemoryMedium{
		logger: logger,
		config: memConfig,
		data:   make(map[string]string),
	}

	medium.state.Store(StateStopped)
	return medium, nil
}

func (m *MemoryMedium) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.logger.Info("Memory storage started", zap.Int64("max_bytes", m.config.MaxBytes))
	return nil
}

func (m *MemoryMedium) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	m.mu.Lock()
	m.data = make(map[string]string)
	m.used = 0
	m.mu.Unlock()

	m.logger.Info("Memory storage stopped gracefully")
	return nil
}

func (m *MemoryMedium) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *MemoryMedium) Get(key string) (string, error) {
	if key == "" {
		return "", types.ErrStorageKeyEmpty
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return "", types.ErrStorageKeyNotFound
	}
	return value, nil
}

func (m *MemoryMedium) Set(key string, value string) error {
	if key == "" {
		return types.ErrStorageKeyEmpty
	}

	size := int64(len(key) + len(value))

	m.mu.Lock()
	defer m.mu.Unlock()

	var existing int64
	if old, exists := m.data[key]; exists {
		existing = int64(len(key) + len(old))
	}

	if m.config.MaxBytes > 0 && m.used-existing+size > m.config.MaxBytes {
		return types.Errorf(types.ErrCapacityExceeded, "need %d bytes, %d of %d used",
			size, m.used-existing, m.config.MaxBytes)
	}

	m.data[key] = value
	m.used += size - existing
	return nil
}

func (m *MemoryMedium) Remove(key string) error {
	if key == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.data[key]; exists {
		m.used -= int64(len(key) + len(old))
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryMedium) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *MemoryMedium) UsedBytes() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

func (m *MemoryMedium) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryMedium) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryMedium) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
