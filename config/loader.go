package config

import (
	"context"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-cache/types"
)

type Loader struct {
	validator *validator.Validate
}

func NewLoader() *Loader {
	return &Loader{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (l *Loader) LoadFromFile(ctx context.Context, configPath string) (*types.ServiceConfig, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, types.WrapError(err, "file not found: "+configPath)
	}

	data, err := l.ReadFileWithTimeout(ctx, configPath)
	if err != nil {
		return nil, types.WrapError(err, "failed to read config file")
	}

	config := l.Defaults()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, types.WrapError(err, "failed to parse YAML config")
	}

	if err := l.validator.Struct(config); err != nil {
		return nil, types.WrapError(err, "config validation failed")
	}

	return config, nil
}

func (l *Loader) ReadFileWithTimeout(ctx context.Context, filepath string) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}

	resultChan := make(chan result, 1)

	go func() {
		data, err := os.ReadFile(filepath)
		resultChan <- result{data: data, err: err}
	}()

	select {
	case res := <-resultChan:
		return res.data, res.err
	case <-ctx.Done():
		return nil, types.WrapError(ctx.Err(), "file read timeout")
	}
}

func (l *Loader) Defaults() *types.ServiceConfig {
	return &types.ServiceConfig{
		Logger: &types.LoggerConfig{
			Level: "debug",
		},
		Storage: &types.StorageConfig{
			Type: "memory",
		},
		Cache: &types.CacheConfig{
			Enabled:    true,
			Prefix:     "saicache-",
			Bucket:     "",
			Resolution: types.Duration(time.Minute),
			DefaultTTL: 0,
			Codec:      "json",
		},
		Sweep: &types.SweepConfig{
			Enabled:  false,
			Schedule: "0 */5 * * * *",
			Timezone: "UTC",
		},
		Metrics: &types.MetricsConfig{
			Enabled: false,
			Type:    "memory",
		},
		Health: &types.HealthConfig{
			Enabled: false,
		},
		Server: &types.ServerConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
	}
}
