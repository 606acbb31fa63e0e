package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigInvalidPath    = errors.New("config invalid path")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigLoadFailed     = errors.New("config load failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCapacityExceeded    = errors.New("storage capacity exceeded")
	ErrMediumUnavailable   = errors.New("storage medium unavailable")
	ErrSerializationFailed = errors.New("value serialization failed")
)

var (
	ErrStorageKeyNotFound = errors.New("storage key not found")
	ErrStorageKeyEmpty    = errors.New("storage key empty")
	ErrStorageTypeUnknown = errors.New("storage type unknown")
	ErrStorageClosed      = errors.New("storage closed")
	ErrStorageOpenFailed  = errors.New("storage open failed")
)

var (
	ErrCacheKeyEmpty        = errors.New("cache key empty")
	ErrCacheIsDisabled      = errors.New("cache is disabled")
	ErrCodecTypeUnknown     = errors.New("codec type unknown")
	ErrCacheOperationFailed = errors.New("cache operation failed")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
	ErrMetricsNotRunning  = errors.New("metrics manager not running")
)

var (
	ErrHealthCheckFailed    = errors.New("health check failed")
	ErrHealthIsNotRunning   = errors.New("health manager not running")
	ErrHealthCheckTimeout   = errors.New("health check timeout")
	ErrServerIsDisabled     = errors.New("server is disabled")
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLogFileWrongFormat  = errors.New("log file wrong format")
	ErrLoggerTypeUnknown   = errors.New("logger type unknown")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

var (
	ErrServiceIsRunning     = errors.New("service is running")
	ErrServiceIsNotRunning  = errors.New("service is not running")
	ErrComponentStartFailed = errors.New("component start failed")
	ErrComponentStopFailed  = errors.New("component stop failed")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
