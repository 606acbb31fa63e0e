package storage

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

type RedisConfig struct {
	Host               string         `yaml:"host" json:"host"`
	Port               int            `yaml:"port" json:"port"`
	Password           string         `yaml:"password" json:"password"`
	DB                 int            `yaml:"db" json:"db"`
	PoolSize           int            `yaml:"pool_size" json:"pool_size"`
	MinIdleConnections int            `yaml:"min_idle_connections" json:"min_idle_connections"`
	DialTimeout        types.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout        types.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout       types.Duration `yaml:"write_timeout" json:"write_timeout"`
	ScanCount          int64          `yaml:"scan_count" json:"scan_count"`
}

// RedisMedium treats a maxmemory-bounded Redis as the storage medium.
// Writes rejected with the server's OOM reply map to ErrCapacityExceeded;
// expiry is never delegated to Redis TTLs, the cache owns it.
type RedisMedium struct {
	ctx     context.Context
	logger  types.Logger
	config  *RedisConfig
	client  *redis.Client
	started int32
}

func NewRedisMedium(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.StorageMedium, error) {
	redisConfig := &RedisConfig{
		Host:               "localhost",
		Port:               6379,
		Password:           "",
		DB:                 0,
		PoolSize:           10,
		MinIdleConnections: 2,
		DialTimeout:        types.Duration(5 * time.Second),
		ReadTimeout:        types.Duration(3 * time.Second),
		WriteTimeout:       types.Duration(3 * time.Second),
		ScanCount:          100,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis storage config")
		}
	}

	medium := &RedisMedium{
		ctx:    ctx,
		logger: logger,
		config: redisConfig,
	}

	medium.client = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		MinIdleConns: redisConfig.MinIdleConnections,
		DialTimeout:  redisConfig.DialTimeout.Std(),
		ReadTimeout:  redisConfig.ReadTimeout.Std(),
		WriteTimeout: redisConfig.WriteTimeout.Std(),
	})

	if err := medium.ping(); err != nil {
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	return medium, nil
}

// NewRedisMediumWithClient wires an existing client, used by tests.
func NewRedisMediumWithClient(ctx context.Context, logger types.Logger, client *redis.Client) types.StorageMedium {
	return &RedisMedium{
		ctx:    ctx,
		logger: logger,
		config: &RedisConfig{ScanCount: 100},
		client: client,
	}
}

func (r *RedisMedium) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	r.logger.Info("Redis storage started",
		zap.String("host", r.config.Host),
		zap.Int("db", r.config.DB))
	return nil
}

func (r *RedisMedium) Stop() error {
	if !atomic.CompareAndSwapInt32(&r.started, 1, 0) {
		return types.ErrServerNotRunning
	}

	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close redis client", zap.Error(err))
		return types.WrapError(err, "failed to close redis client")
	}

	r.logger.Info("Redis storage stopped gracefully")
	return nil
}

func (r *RedisMedium) IsRunning() bool {
	return atomic.LoadInt32(&r.started) == 1
}

func (r *RedisMedium) Get(key string) (string, error) {
	if key == "" {
		return "", types.ErrStorageKeyEmpty
	}

	result, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		if types.IsError(err, redis.Nil) {
			return "", types.ErrStorageKeyNotFound
		}
		return "", types.WrapError(err, "failed to get key")
	}
	return result, nil
}

func (r *RedisMedium) Set(key string, value string) error {
	if key == "" {
		return types.ErrStorageKeyEmpty
	}

	err := r.client.Set(r.ctx, key, value, 0).Err()
	if err != nil {
		if isOOM(err) {
			return types.Errorf(types.ErrCapacityExceeded, "redis: %v", err)
		}
		return types.WrapError(err, "failed to set key")
	}
	return nil
}

func (r *RedisMedium) Remove(key string) error {
	if key == "" {
		return nil
	}

	if err := r.client.Del(r.ctx, key).Err(); err != nil {
		return types.WrapError(err, "failed to delete key")
	}
	return nil
}

func (r *RedisMedium) Keys(prefix string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		batch, next, err := r.client.Scan(r.ctx, cursor, prefix+"*", r.config.ScanCount).Result()
		if err != nil {
			return nil, types.WrapError(err, "failed to scan keys")
		}

		keys = append(keys, batch...)

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

func (r *RedisMedium) ping() error {
	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

// Redis rejects writes over maxmemory with "OOM command not allowed...".
func isOOM(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM")
}
