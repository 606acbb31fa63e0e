package sai

import (
	"sync/atomic"

	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/storage"
	"github.com/saiset-co/sai-cache/types"
)

type Container struct {
	Config  atomic.Pointer[types.ConfigManager]
	Logger  atomic.Pointer[types.LoggerManager]
	Storage atomic.Pointer[types.StorageMedium]
	Cache   atomic.Pointer[types.CacheManager]
	Cron    atomic.Pointer[types.CronManager]
	Metrics atomic.Pointer[types.MetricsManager]
	Health  atomic.Pointer[types.HealthManager]
	Server  atomic.Pointer[types.LifecycleManager]
}

var globalContainer *Container

func InitContainer() *Container {
	return &Container{}
}

func SetContainer(container *Container) {
	globalContainer = container
}

func Config() types.ConfigManager {
	if ptr := globalContainer.Config.Load(); ptr != nil {
		return *ptr
	}
	panic("ConfigManager not initialized")
}

func Logger() types.LoggerManager {
	if ptr := globalContainer.Logger.Load(); ptr != nil {
		return *ptr
	}
	panic("Logger not initialized")
}

func Storage() types.StorageMedium {
	if ptr := globalContainer.Storage.Load(); ptr != nil {
		return *ptr
	}
	panic("StorageMedium not initialized")
}

func Cache() types.CacheManager {
	if ptr := globalContainer.Cache.Load(); ptr != nil {
		return *ptr
	}
	panic("CacheManager not initialized")
}

func Cron() types.CronManager {
	if ptr := globalContainer.Cron.Load(); ptr != nil {
		return *ptr
	}
	panic("CronManager not initialized")
}

func Metrics() types.MetricsManager {
	if ptr := globalContainer.Metrics.Load(); ptr != nil {
		return *ptr
	}
	panic("MetricsManager not initialized")
}

func RegisterStorageMedium(mediumType string, creator types.StorageMediumCreator) {
	storage.RegisterStorageMedium(mediumType, creator)
}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	metrics.RegisterMetricsManager(metricsManagerName, creator)
}

func RegisterLogger(loggerName string, creator types.LoggerCreator) {
	logger.RegisterLogger(loggerName, creator)
}

func (fc *Container) SetConfig(config types.ConfigManager) {
	fc.Config.Store(&config)
}

func (fc *Container) SetLogger(logger types.LoggerManager) {
	fc.Logger.Store(&logger)
}

func (fc *Container) SetStorage(medium types.StorageMedium) {
	fc.Storage.Store(&medium)
}

func (fc *Container) SetCache(cache types.CacheManager) {
	fc.Cache.Store(&cache)
}

func (fc *Container) SetCron(cron types.CronManager) {
	fc.Cron.Store(&cron)
}

func (fc *Container) SetMetrics(metrics types.MetricsManager) {
	fc.Metrics.Store(&metrics)
}

func (fc *Container) SetHealth(health types.HealthManager) {
	fc.Health.Store(&health)
}

func (fc *Container) SetServer(server types.LifecycleManager) {
	fc.Server.Store(&server)
}
