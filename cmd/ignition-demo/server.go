package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkflow-go/ignition/pkg/config"
	"github.com/linkflow-go/ignition/pkg/ignition"
	"github.com/linkflow-go/ignition/pkg/ignition/recording"
	"github.com/linkflow-go/ignition/pkg/logger"
)

// server exposes the coordinator's readiness state over HTTP and a
// one-shot websocket timeline feed, the way the rest of this codebase's
// services front their domain logic with gin.
type server struct {
	cfg         *config.Config
	log         logger.Logger
	coordinator *ignition.Coordinator
	graph       *ignition.Graph
	publisher   *recordingPublisher

	httpServer *http.Server

	mu  sync.Mutex
	rec *recording.Recording
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func newServer(cfg *config.Config, log logger.Logger, coordinator *ignition.Coordinator, graph *ignition.Graph, publisher *recordingPublisher) *server {
	return &server{cfg: cfg, log: log, coordinator: coordinator, graph: graph, publisher: publisher}
}

func (s *server) Run(ctx context.Context, addr string) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())

	router.GET("/healthz", s.handleLiveness)
	router.GET("/readyz", s.handleReadiness)
	router.GET("/recording", s.handleRecording)
	router.GET("/ws/timeline", s.handleTimelineSocket)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "duration", time.Since(start))
	}
}

// handleLiveness always reports the process is up, independent of
// ignition progress.
func (s *server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// handleReadiness reports the coordinator's current lifecycle state
// without driving the ignition itself (the background goroutine in
// main owns that); State()/GetResult() never block.
func (s *server) handleReadiness(c *gin.Context) {
	state := s.coordinator.State()
	if state == ignition.StateNotStarted || state == ignition.StateRunning {
		c.JSON(http.StatusServiceUnavailable, gin.H{"state": state})
		return
	}

	result, err := s.coordinator.GetResult()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"state": state, "error": err.Error()})
		return
	}

	status := http.StatusOK
	switch result.Health() {
	case ignition.HealthDegraded:
		status = http.StatusOK
	case ignition.HealthUnhealthy:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"state": state, "health": result.Health(), "result": result})
}

func (s *server) handleRecording(c *gin.Context) {
	rec := s.buildRecording()
	if rec == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ignition has not reached a terminal state yet"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleTimelineSocket upgrades to a websocket and pushes a single
// Timeline frame once the ignition reaches a terminal state, then
// closes — this is a readiness dashboard feed, not a live event stream.
func (s *server) handleTimelineSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	rec := s.buildRecording()
	if rec == nil {
		_ = conn.WriteJSON(gin.H{"error": "ignition has not reached a terminal state yet"})
		return
	}
	timeline := recording.NewTimeline(rec)
	_ = conn.WriteJSON(timeline)
}

// buildRecording derives and caches a Recording from the coordinator's
// result the first time it's asked for after a terminal state; returns
// nil while the ignition is still running.
func (s *server) buildRecording() *recording.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec != nil {
		return s.rec
	}

	state := s.coordinator.State()
	if state == ignition.StateNotStarted || state == ignition.StateRunning {
		return nil
	}
	result, err := s.coordinator.GetResult()
	if err != nil {
		return nil
	}

	deps := make(map[string][]string)
	for _, sig := range s.graph.Signals() {
		var names []string
		for _, parent := range s.graph.Dependencies(sig) {
			names = append(names, parent.Name)
		}
		deps[sig.Name] = names
	}

	s.rec = recording.New(result, recording.Options{
		FinalState: state,
		Configuration: recording.Configuration{
			ExecutionMode:             s.cfg.Ignition.ExecutionMode,
			Policy:                    s.cfg.Ignition.Policy,
			GlobalTimeoutMs:           int64(s.cfg.Ignition.GlobalTimeoutMs),
			CancelOnGlobalTimeout:     s.cfg.Ignition.CancelOnGlobalTimeout,
			CancelIndividualOnTimeout: s.cfg.Ignition.CancelIndividualOnTimeout,
		},
		Dependencies: deps,
	})
	return s.rec
}
