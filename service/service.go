package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-cache/cache"
	"github.com/saiset-co/sai-cache/config"
	"github.com/saiset-co/sai-cache/cron"
	"github.com/saiset-co/sai-cache/health"
	"github.com/saiset-co/sai-cache/logger"
	"github.com/saiset-co/sai-cache/metrics"
	"github.com/saiset-co/sai-cache/sai"
	"github.com/saiset-co/sai-cache/server"
	"github.com/saiset-co/sai-cache/storage"
	"github.com/saiset-co/sai-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const sweepJobName = "cache-sweep"

// Service wires the cache components together and drives their
// lifecycle: config, logger, health, metrics, storage medium, cache,
// admin server and the sweep scheduler.
type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
	startTimeout    time.Duration
	container       *sai.Container
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	_, err := os.Stat(configPath)
	if err != nil {
		return nil, types.WrapError(err, "file does not exist")
	}

	serviceCtx, cancel := context.WithCancel(ctx)
	container := sai.InitContainer()

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		configPath:      configPath,
		container:       container,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
		startTimeout:    60 * time.Second,
	}

	service.state.Store(StateStopped)

	if err := registerProviders(container, ctx, configPath); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	sai.SetContainer(container)
	return service, nil
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		sai.Logger().Warn("Service is already running")
		return types.ErrServerAlreadyRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				sai.Logger().Error("Service run panic", zap.Stack(string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	sai.Logger().Info("Starting service")

	ctx, cancel := context.WithTimeout(s.ctx, s.startTimeout)
	defer cancel()

	if err := s.startComponents(ctx); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	sai.Logger().Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		sai.Logger().Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	sai.Logger().Info("Service stopped gracefully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		sai.Logger().Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	sai.Logger().Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Cancel() {
	s.cancel()
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

// startComponents brings components up in dependency order: the medium
// before the cache that writes through it, the cache before the sweep
// scheduler and admin surface that consult it.
func (s *Service) startComponents(ctx context.Context) error {
	if ptr := s.container.Config.Load(); ptr != nil {
		manager := (*ptr).(types.LifecycleManager)
		if err := manager.Start(); err != nil {
			return types.WrapError(err, "failed to start config manager")
		}
	}

	if ptr := s.container.Logger.Load(); ptr != nil {
		manager := (*ptr).(types.LifecycleManager)
		if err := manager.Start(); err != nil {
			return types.WrapError(err, "failed to start logger")
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Health.Load(); ptr != nil {
		manager := (*ptr).(types.LifecycleManager)
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Start(); err != nil {
					sai.Logger().Error("Failed to start health manager", zap.Error(err))
				}
				return nil
			}
		})
	}

	if ptr := s.container.Metrics.Load(); ptr != nil {
		manager := (*ptr).(types.LifecycleManager)
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Start(); err != nil {
					sai.Logger().Error("Failed to start metrics manager", zap.Error(err))
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			return types.NewErrorf("component startup timeout: %v", ctx.Err())
		default:
			return err
		}
	}

	if ptr := s.container.Storage.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start storage medium")
		}
	}

	if ptr := s.container.Cache.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start cache manager")
		}
	}

	if ptr := s.container.Server.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			sai.Logger().Error("Failed to start admin server", zap.Error(err))
		}
	}

	if ptr := s.container.Cron.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			sai.Logger().Error("Failed to start cron manager", zap.Error(err))
		}
	}

	sai.Logger().Info("All components started successfully")
	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errors []error

	sai.Logger().Info("Stopping service components...")

	g, gCtx := errgroup.WithContext(ctx)

	if ptr := s.container.Cron.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Stop(); err != nil {
					sai.Logger().Error("Failed to stop cron manager", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if ptr := s.container.Server.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Stop(); err != nil {
					sai.Logger().Error("Failed to stop admin server", zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		select {
		case <-ctx.Done():
			sai.Logger().Warn("Component shutdown timeout, some components may not have stopped gracefully")
		default:
			errors = append(errors, err)
		}
	}

	if ptr := s.container.Cache.Load(); ptr != nil {
		if err := (*ptr).Stop(); err != nil {
			sai.Logger().Error("Failed to stop cache manager", zap.Error(err))
			errors = append(errors, err)
		}
	}

	if ptr := s.container.Storage.Load(); ptr != nil {
		if err := (*ptr).Stop(); err != nil {
			sai.Logger().Error("Failed to stop storage medium", zap.Error(err))
			errors = append(errors, err)
		}
	}

	g, _ = errgroup.WithContext(context.Background())

	if ptr := s.container.Metrics.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := manager.Stop(); err != nil {
				sai.Logger().Error("Failed to stop metrics manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if ptr := s.container.Health.Load(); ptr != nil {
		manager := *ptr
		g.Go(func() error {
			if err := manager.Stop(); err != nil {
				sai.Logger().Error("Failed to stop health manager", zap.Error(err))
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		errors = append(errors, err)
	}

	if ptr := s.container.Logger.Load(); ptr != nil {
		if err := (*ptr).(types.LifecycleManager).Stop(); err != nil {
			errors = append(errors, err)
		}
	}

	if ptr := s.container.Config.Load(); ptr != nil {
		if err := (*ptr).(types.LifecycleManager).Stop(); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return types.NewErrorf("errors during shutdown: %v", errors)
	}

	sai.Logger().Info("All components stopped successfully")
	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			sai.Logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
			sai.Logger().Info("Service context cancelled")
		}

		signal.Stop(sigChan)
		close(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		sai.Logger().Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		sai.Logger().Warn("Service shutdown: context deadline exceeded")
	default:
		sai.Logger().Info("Service shutdown: context done")
	}
}

func registerProviders(container *sai.Container, ctx context.Context, configPath string) error {
	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return types.WrapError(err, "failed to register config manager")
	}
	container.SetConfig(configManager)

	_config := configManager.GetConfig()

	loggerManager, err := logger.NewManager(ctx, configManager)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	container.SetLogger(loggerManager)

	var healthManager *health.Manager
	if _config.Health == nil || _config.Health.Enabled {
		healthManager, err = health.NewManager(ctx, configManager, loggerManager)
		if err != nil {
			return types.WrapError(err, "failed to register health manager")
		}
		container.SetHealth(healthManager)
	}

	metricsManager, err := metrics.NewManager(ctx, configManager, loggerManager)
	if err != nil {
		return types.WrapError(err, "failed to register metrics manager")
	}
	container.SetMetrics(metricsManager)

	medium, err := storage.NewStorageMedium(ctx, configManager, loggerManager)
	if err != nil {
		return types.WrapError(err, "failed to register storage medium")
	}
	container.SetStorage(medium)

	var cacheManager types.CacheManager
	if _config.Cache != nil && _config.Cache.Enabled {
		cacheManager, err = cache.NewCacheManager(ctx, configManager, loggerManager, metricsManager, medium)
		if err != nil {
			return types.WrapError(err, "failed to register cache manager")
		}
		container.SetCache(cacheManager)
	}

	if healthManager != nil {
		healthManager.RegisterChecker("storage", health.StorageChecker(medium, func() bool {
			return cache.MediumAvailable(medium)
		}))
		if cacheManager != nil {
			healthManager.RegisterChecker("cache", health.CacheChecker(cacheManager))
		}
	}

	if _config.Sweep != nil && _config.Sweep.Enabled && cacheManager != nil {
		cronManager, err := cron.NewManager(configManager, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to register cron manager")
		}

		sweep := cacheManager
		if err := cronManager.Add(sweepJobName, _config.Sweep.Schedule, func() {
			sweep.Sweep()
		}); err != nil {
			return types.WrapError(err, "failed to schedule cache sweep")
		}

		container.SetCron(cronManager)
	}

	if _config.Server != nil && _config.Server.Enabled && healthManager != nil && cacheManager != nil {
		adminServer, err := server.NewServer(ctx, configManager, loggerManager, healthManager, metricsManager, cacheManager)
		if err != nil {
			return types.WrapError(err, "failed to register admin server")
		}
		container.SetServer(adminServer)
	}

	return nil
}
