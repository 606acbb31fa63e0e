package storage

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

const (
	DefaultCloverCapacity = 32 * 1024 * 1024
	DefaultCloverPath     = "sai-cache-clover"

	entriesCollection = "entries"
)

type CloverConfig struct {
	Path     string `yaml:"path" json:"path"`
	MaxBytes int64  `yaml:"max_bytes" json:"max_bytes"`
}

// CloverMedium keeps entries as {key, value} documents in one collection.
// Clover has no size bound of its own, so the used-bytes counter is
// rebuilt from the persisted documents at Start and maintained on writes.
type CloverMedium struct {
	logger types.Logger
	config *CloverConfig
	db     *clover.DB
	used   int64
	mu     sync.Mutex
	state  atomic.Value
}

func NewCloverMedium(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.StorageMedium, error) {
	cloverConfig := &CloverConfig{
		Path:     DefaultCloverPath,
		MaxBytes: DefaultCloverCapacity,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, cloverConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover storage config")
		}
	}

	if cloverConfig.MaxBytes == 0 {
		cloverConfig.MaxBytes = DefaultCloverCapacity
	}

	// An empty path would open the working directory as the database.
	if cloverConfig.Path == "" {
		cloverConfig.Path = DefaultCloverPath
	}

	db, err := clover.Open(cloverConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open clover database")
	}

	medium := &CloverMedium{
		logger: logger,
		config: cloverConfig,
		db:     db,
	}

	medium.state.Store(StateStopped)
	return medium, nil
}

func (c *CloverMedium) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if c.getState() == StateStarting {
			c.setState(StateRunning)
		}
	}()

	exists, err := c.db.HasCollection(entriesCollection)
	if err != nil {
		c.setState(StateStopped)
		return types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := c.db.CreateCollection(entriesCollection); err != nil {
			c.setState(StateStopped)
			return types.WrapError(err, "failed to create collection")
		}
	}

	used, err := c.measureUsed()
	if err != nil {
		c.setState(StateStopped)
		return err
	}

	c.mu.Lock()
	c.used = used
	c.mu.Unlock()

	c.logger.Info("Clover storage started",
		zap.String("path", c.config.Path),
		zap.Int64("used_bytes", used),
		zap.Int64("max_bytes", c.config.MaxBytes))
	return nil
}

func (c *CloverMedium) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		c.setState(StateStopped)
	}()

	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close clover database")
	}

	c.logger.Info("Clover storage stopped gracefully")
	return nil
}

func (c *CloverMedium) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *CloverMedium) Get(key string) (string, error) {
	if key == "" {
		return "", types.ErrStorageKeyEmpty
	}

	docs, err := c.db.Query(entriesCollection).Where(clover.Field("key").Eq(key)).FindAll()
	if err != nil {
		return "", types.WrapError(err, "failed to query key")
	}

	if len(docs) == 0 {
		return "", types.ErrStorageKeyNotFound
	}

	value, ok := docs[0].Get("value").(string)
	if !ok {
		return "", types.Errorf(types.ErrStorageKeyNotFound, "malformed document for key %s", key)
	}
	return value, nil
}

func (c *CloverMedium) Set(key string, value string) error {
	if key == "" {
		return types.ErrStorageKeyEmpty
	}

	size := int64(len(key) + len(value))

	c.mu.Lock()
	defer c.mu.Unlock()

	query := c.db.Query(entriesCollection).Where(clover.Field("key").Eq(key))

	var existing int64
	docs, err := query.FindAll()
	if err != nil {
		return types.WrapError(err, "failed to query existing key")
	}
	if len(docs) > 0 {
		if old, ok := docs[0].Get("value").(string); ok {
			existing = int64(len(key) + len(old))
		}
	}

	if c.config.MaxBytes > 0 && c.used-existing+size > c.config.MaxBytes {
		return types.Errorf(types.ErrCapacityExceeded, "need %d bytes, %d of %d used",
			size, c.used-existing, c.config.MaxBytes)
	}

	if len(docs) > 0 {
		if err := query.Update(map[string]interface{}{"value": value}); err != nil {
			return types.WrapError(err, "failed to update document")
		}
	} else {
		doc := clover.NewDocument()
		doc.Set("key", key)
		doc.Set("value", value)

		if err := c.db.Insert(entriesCollection, doc); err != nil {
			return types.WrapError(err, "failed to insert document")
		}
	}

	c.used += size - existing
	return nil
}

func (c *CloverMedium) Remove(key string) error {
	if key == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	query := c.db.Query(entriesCollection).Where(clover.Field("key").Eq(key))

	docs, err := query.FindAll()
	if err != nil {
		return types.WrapError(err, "failed to query key")
	}
	if len(docs) == 0 {
		return nil
	}

	if err := query.Delete(); err != nil {
		return types.WrapError(err, "failed to delete document")
	}

	if old, ok := docs[0].Get("value").(string); ok {
		c.used -= int64(len(key) + len(old))
	}
	return nil
}

func (c *CloverMedium) Keys(prefix string) ([]string, error) {
	docs, err := c.db.Query(entriesCollection).FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to enumerate documents")
	}

	var keys []string
	for _, doc := range docs {
		key, ok := doc.Get("key").(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (c *CloverMedium) measureUsed() (int64, error) {
	docs, err := c.db.Query(entriesCollection).FindAll()
	if err != nil {
		return 0, types.WrapError(err, "failed to measure used bytes")
	}

	var used int64
	for _, doc := range docs {
		key, _ := doc.Get("key").(string)
		value, _ := doc.Get("value").(string)
		used += int64(len(key) + len(value))
	}
	return used, nil
}

func (c *CloverMedium) getState() State {
	return c.state.Load().(State)
}

func (c *CloverMedium) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *CloverMedium) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
