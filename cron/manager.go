package cron

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
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

type jobEntry struct {
	id       cron.EntryID
	name     string
	spec     string
	lastRun  time.Time
	runCount uint64
}

// Manager schedules background jobs on a seconds-resolution cron. Jobs
// run with panic recovery; a panicking job never takes the scheduler
// down.
type Manager struct {
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	timezone        *time.Location
	jobs            map[string]*jobEntry
	mu              sync.RWMutex
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewManager(config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.CronManager, error) {
	timezone := time.UTC
	if sweepConfig := config.GetConfig().Sweep; sweepConfig != nil && sweepConfig.Timezone != "" {
		loaded, err := time.LoadLocation(sweepConfig.Timezone)
		if err != nil {
			logger.Warn("Unknown timezone, falling back to UTC",
				zap.String("timezone", sweepConfig.Timezone))
		} else {
			timezone = loaded
		}
	}

	cronL := safeCronLogger{logger: logger}

	cronOptions := []cron.Option{
		cron.WithLocation(timezone),
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronL)),
	}

	manager := &Manager{
		logger:          logger,
		metrics:         metrics,
		cron:            cron.New(cronOptions...),
		timezone:        timezone,
		jobs:            make(map[string]*jobEntry),
		shutdownTimeout: 10 * time.Second,
	}

	manager.state.Store(StateStopped)

	return manager, nil
}

func (m *Manager) Add(jobName, spec string, job func()) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if spec == "" {
		return types.ErrCronExpressionInvalid
	}

	if job == nil {
		return types.ErrCronJobIsNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobName]; exists {
		return types.ErrCronJobExists
	}

	entryID, err := m.cron.AddFunc(spec, m.wrapJob(jobName, job))
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "spec %q: %v", spec, err)
	}

	m.jobs[jobName] = &jobEntry{
		id:   entryID,
		name: jobName,
		spec: spec,
	}

	m.logger.Info("Cron job added",
		zap.String("job_name", jobName),
		zap.String("spec", spec))

	return nil
}

func (m *Manager) Remove(jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return types.ErrCronJobNotFound
	}

	m.cron.Remove(entry.id)
	delete(m.jobs, jobName)

	m.logger.Info("Cron job removed", zap.String("job_name", jobName))
	return nil
}

func (m *Manager) Jobs() []types.JobInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]types.JobInfo, 0, len(m.jobs))
	for _, entry := range m.jobs {
		info := types.JobInfo{
			Name:     entry.name,
			Spec:     entry.spec,
			LastRun:  entry.lastRun,
			RunCount: entry.runCount,
		}

		if cronEntry := m.cron.Entry(entry.id); cronEntry.ID != 0 {
			info.NextRun = cronEntry.Next
		}

		jobs = append(jobs, info)
	}
	return jobs
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrCronIsRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.cron.Start()

	m.logger.Info("Cron manager started", zap.String("timezone", m.timezone.String()))
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	stopCtx := m.cron.Stop()

	select {
	case <-stopCtx.Done():
		m.logger.Info("Cron scheduler stopped gracefully")
	case <-time.After(m.shutdownTimeout):
		m.logger.Warn("Cron manager stop timeout, some jobs may not have finished")
	}

	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *Manager) getState() State {
	return m.state.Load().(State)
}

func (m *Manager) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *Manager) wrapJob(jobName string, job func()) func() {
	return func() {
		startTime := time.Now()

		m.logger.Debug("Cron job started", zap.String("job_name", jobName))

		result := "success"

		func() {
			defer func() {
				if r := recover(); r != nil {
					result = "error"
					m.logger.Error("Cron job panicked",
						zap.String("job_name", jobName),
						zap.Any("panic", r))
				}
			}()
			job()
		}()

		duration := time.Since(startTime)

		m.mu.Lock()
		if entry, exists := m.jobs[jobName]; exists {
			entry.lastRun = startTime
			entry.runCount++
		}
		m.mu.Unlock()

		m.recordJobMetrics(jobName, result, duration)

		m.logger.Info("Cron job completed",
			zap.String("job_name", jobName),
			zap.String("result", result),
			zap.Duration("duration", duration))
	}
}

func (m *Manager) recordJobMetrics(jobName, result string, duration time.Duration) {
	if m.metrics == nil {
		return
	}

	counter := m.metrics.Counter("cron_job_executions_total", map[string]string{
		"job_name": jobName,
		"result":   result,
	})
	counter.Inc()

	histogram := m.metrics.Histogram("cron_job_duration_seconds",
		[]float64{0.1, 1.0, 10.0, 60.0, 300.0},
		map[string]string{"job_name": jobName},
	)
	histogram.Observe(duration.Seconds())
}

type safeCronLogger struct {
	logger types.Logger
}

func (l safeCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, convertFields(keysAndValues)...)
}

func (l safeCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(convertFields(keysAndValues), zap.Error(err))
	l.logger.Error(msg, fields...)
}

func convertFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
