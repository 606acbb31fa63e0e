package server

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-cache/health"
	"github.com/saiset-co/sai-cache/types"
	"github.com/saiset-co/sai-cache/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Server exposes the operational endpoints: /health, /metrics, /stats
// and /version. It is an internal plaintext listener, not a public API.
type Server struct {
	ctx             context.Context
	cancel          context.CancelFunc
	config          types.ConfigManager
	logger          types.Logger
	health          *health.Manager
	metrics         types.MetricsManager
	cache           types.CacheManager
	server          *fasthttp.Server
	addr            string
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewServer(ctx context.Context, config types.ConfigManager, logger types.Logger, healthManager *health.Manager, metrics types.MetricsManager, cache types.CacheManager) (*Server, error) {
	serverConfig := config.GetConfig().Server
	if serverConfig == nil || !serverConfig.Enabled {
		return nil, types.ErrServerIsDisabled
	}

	serverCtx, cancel := context.WithCancel(ctx)

	srv := &Server{
		ctx:             serverCtx,
		cancel:          cancel,
		config:          config,
		logger:          logger,
		health:          healthManager,
		metrics:         metrics,
		cache:           cache,
		addr:            fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
		shutdownTimeout: time.Duration(serverConfig.ShutdownTimeout) * time.Second,
	}

	if srv.shutdownTimeout == 0 {
		srv.shutdownTimeout = 10 * time.Second
	}

	srv.server = &fasthttp.Server{
		Handler:      srv.handleRequest,
		ReadTimeout:  time.Duration(serverConfig.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(serverConfig.WriteTimeout) * time.Second,
		Name:         config.GetConfig().Name,
	}

	srv.state.Store(StateStopped)

	return srv, nil
}

func (s *Server) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	go func() {
		if err := s.server.ListenAndServe(s.addr); err != nil {
			s.logger.Error("Admin server stopped unexpectedly", zap.Error(err))
		}
	}()

	s.logger.Info("Admin server started", zap.String("addr", s.addr))
	return nil
}

func (s *Server) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.setState(StateStopped)
		s.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.server.ShutdownWithContext(ctx); err != nil {
		s.logger.Error("Admin server shutdown failed", zap.Error(err))
		return types.WrapError(err, "failed to shutdown admin server")
	}

	s.logger.Info("Admin server stopped gracefully")
	return nil
}

func (s *Server) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Server) handleRequest(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		return
	}

	switch string(ctx.Path()) {
	case "/health":
		s.handleHealth(ctx)
	case "/metrics":
		s.handleMetrics(ctx)
	case "/stats":
		s.handleStats(ctx)
	case "/version":
		s.handleVersion(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	report := s.health.Check(ctx)

	statusCode := fasthttp.StatusOK
	if report.Status == types.StatusUnhealthy {
		statusCode = fasthttp.StatusServiceUnavailable
	}

	s.writeJSON(ctx, statusCode, report)
}

func (s *Server) handleMetrics(ctx *fasthttp.RequestCtx) {
	data, err := s.metrics.GetMetrics()
	if err != nil {
		s.logger.Error("Failed to gather metrics", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(data)
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	s.writeJSON(ctx, fasthttp.StatusOK, s.cache.Stats())
}

func (s *Server) handleVersion(ctx *fasthttp.RequestCtx) {
	info := types.VersionInfo{
		Version:   s.config.GetConfig().Version,
		BuildInfo: getBuildInfo(),
		Instance:  s.health.Instance(),
	}

	s.writeJSON(ctx, fasthttp.StatusOK, info)
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, statusCode int, payload interface{}) {
	data, err := utils.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(statusCode)
	ctx.SetBody(data)
}

func getBuildInfo() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

func (s *Server) getState() State {
	return s.state.Load().(State)
}

func (s *Server) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Server) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
