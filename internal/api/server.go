package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/jbweber/thoth/internal/metrics"
	"github.com/jbweber/thoth/internal/provision"
	"github.com/jbweber/thoth/internal/remote"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Logger *zap.Logger
	// Debug puts gin in debug mode.
	Debug bool
	// CallTimeout bounds each backend call made on behalf of a request.
	CallTimeout time.Duration
	// Provision configures the orchestrator behind /api/runs. Its Logger
	// defaults to the server's.
	Provision provision.Config
}

// Server exposes a remote.Client as the REST API.
type Server struct {
	backend remote.Client
	log     *zap.SugaredLogger
	cfg     ServerConfig
	router  *gin.Engine
	runs    *provision.Orchestrator
	// runCtx bounds submitted runs. Runs outlive the request that submitted
	// them and end when the server shuts down.
	runCtx context.Context
}

// NewServer builds the router around backend.
func NewServer(backend remote.Client, cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Minute
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Provision.Logger == nil {
		cfg.Provision.Logger = cfg.Logger.Sugar().Named("provision")
	}

	s := &Server{
		backend: backend,
		log:     cfg.Logger.Sugar(),
		cfg:     cfg,
		router:  gin.New(),
		runs:    provision.New(backend, cfg.Provision),
		runCtx:  context.Background(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(ginzap.Ginzap(s.cfg.Logger, time.RFC3339, true))
	s.router.Use(ginzap.RecoveryWithZap(s.cfg.Logger, true))
	s.router.Use(metricsMiddleware())
	s.router.Use(gzip.Gzip(gzip.DefaultCompression))

	s.router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "online") })
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/system/info", s.handleSystemInfo)

		api.GET("/vms", s.handleList)
		api.POST("/vms/deploy", s.handleDeploy)
		api.GET("/vms/:name", s.handleDetail)
		api.DELETE("/vms/:name", s.handleDelete)
		api.GET("/vms/:name/status", s.handleStatus)
		api.GET("/vms/:name/stats", s.handleStats)
		api.GET("/vms/:name/vnc", s.handleConsole)
		api.GET("/vms/:name/ip", s.handleAddress)
		for _, action := range remote.Actions {
			api.POST("/vms/:name/"+string(action), s.handleAction(action))
		}

		api.GET("/vms/:name/snapshots", s.handleListSnapshots)
		api.POST("/vms/:name/snapshots", s.handleCreateSnapshot)
		api.POST("/vms/:name/snapshots/:snap/revert", s.handleRevertSnapshot)
		api.DELETE("/vms/:name/snapshots/:snap", s.handleDeleteSnapshot)
		api.POST("/vms/:name/clone", s.handleClone)

		api.POST("/runs", s.handleSubmitRun)
		api.GET("/runs", s.handleListRuns)
		api.GET("/runs/:id", s.handleGetRun)
		api.DELETE("/runs/:id", s.handleDismissRun)
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Runs submitted through /api/runs are cancelled with ctx.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.runCtx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("starting REST server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Infow("shutting down REST server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func respond(c *gin.Context, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.String(http.StatusInternalServerError, `{"success":false,"error":"encoding response failed"}`)
		return
	}
	c.Data(code, "application/json; charset=utf-8", b)
}

func ok() envelope { return envelope{Success: true} }

func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if code == codeAddressNotAvailable {
		msg = addressNotAvailableMessage
	}
	if status >= http.StatusInternalServerError {
		s.log.Errorw("request failed", "route", c.FullPath(), "error", err)
	} else {
		s.log.Debugw("request rejected", "route", c.FullPath(), "error", err)
	}
	respond(c, status, envelope{Error: msg, Code: code})
}

func (s *Server) bind(c *gin.Context, op string, v any) bool {
	if err := json.NewDecoder(c.Request.Body).Decode(v); err != nil {
		s.fail(c, remote.Validation(op, fmt.Errorf("invalid request body: %w", err)))
		return false
	}
	return true
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.cfg.CallTimeout)
}

func (s *Server) handleList(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	vms, err := s.backend.ListResources(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	if vms == nil {
		vms = []remote.ResourceSummary{}
	}
	respond(c, http.StatusOK, listResponse{envelope: ok(), VMs: vms, TotalCount: len(vms)})
}

func (s *Server) handleDetail(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	d, err := s.backend.GetResourceDetail(ctx, c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, detailResponse{
		envelope: ok(),
		Name:     d.Name,
		State:    d.State,
		Running:  d.Running,
		Info:     d.Info,
		XML:      d.XML,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	st, err := s.backend.GetResourceStatus(ctx, c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, statusResponse{envelope: ok(), State: st.State, Running: st.Running})
}

func (s *Server) handleStats(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	st, err := s.backend.GetResourceStats(ctx, c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, statsResponse{envelope: ok(), Stats: st})
}

func (s *Server) handleConsole(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	ep, err := s.backend.GetConsoleEndpoint(ctx, c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, consoleResponse{envelope: ok(), ConsoleEndpoint: *ep})
}

func (s *Server) handleAddress(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	addr, err := s.backend.GetResourceAddress(ctx, c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, addressResponse{envelope: ok(), PrimaryIP: addr.Primary, Interfaces: addr.Interfaces})
}

func (s *Server) handleAction(action remote.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := s.ctx(c)
		defer cancel()
		name := c.Param("name")
		if err := remote.Do(ctx, s.backend, action, name); err != nil {
			s.fail(c, err)
			return
		}
		s.log.Infow("lifecycle action", "action", action, "resource", name)
		respond(c, http.StatusOK, actionResponse{envelope: ok(), Output: fmt.Sprintf("Domain %s: %s issued", name, action)})
	}
}

func (s *Server) handleDelete(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	name := c.Param("name")
	removeDisks, _ := strconv.ParseBool(c.DefaultQuery("removeDisks", "false"))
	if err := s.backend.DeleteResource(ctx, name, removeDisks); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, actionResponse{envelope: ok(), Output: fmt.Sprintf("Domain %s deleted", name)})
}

func (s *Server) handleDeploy(c *gin.Context) {
	var in deployRequest
	if !s.bind(c, "deploy", &in) {
		return
	}
	req := in.provisioningRequest()
	if err := req.Normalized().Validate(); err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()
	name, err := s.backend.CreateProvisioningRequest(ctx, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.log.Infow("provisioning request accepted", "resource", name)
	respond(c, http.StatusOK, deployResponse{envelope: ok(), VMName: name})
}

func (s *Server) handleListSnapshots(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	snaps, err := s.backend.ListSnapshots(ctx, c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if snaps == nil {
		snaps = []remote.Snapshot{}
	}
	respond(c, http.StatusOK, snapshotsResponse{envelope: ok(), Snapshots: snaps})
}

func (s *Server) handleCreateSnapshot(c *gin.Context) {
	var in snapshotRequest
	if !s.bind(c, "create snapshot", &in) {
		return
	}
	if in.SnapshotName == "" {
		s.fail(c, remote.Validation("create snapshot", errors.New("snapshotName is required")))
		return
	}
	if in.Description == "" {
		in.Description = remote.DefaultSnapshotDescription
	}

	ctx, cancel := s.ctx(c)
	defer cancel()
	if err := s.backend.CreateSnapshot(ctx, c.Param("name"), in.SnapshotName, in.Description); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, ok())
}

func (s *Server) handleRevertSnapshot(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	if err := s.backend.RevertSnapshot(ctx, c.Param("name"), c.Param("snap")); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, ok())
}

func (s *Server) handleDeleteSnapshot(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	if err := s.backend.DeleteSnapshot(ctx, c.Param("name"), c.Param("snap")); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, ok())
}

func (s *Server) handleClone(c *gin.Context) {
	var in cloneRequest
	if !s.bind(c, "clone", &in) {
		return
	}
	if in.CloneName == "" {
		s.fail(c, remote.Validation("clone", errors.New("cloneName is required")))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()
	if err := s.backend.CloneResource(ctx, c.Param("name"), in.CloneName); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, ok())
}

func (s *Server) handleSystemInfo(c *gin.Context) {
	si, isInfoer := s.backend.(remote.SystemInfoer)
	if !isInfoer {
		respond(c, http.StatusNotImplemented, envelope{Error: "system info not supported by this backend", Code: codeInternal})
		return
	}
	ctx, cancel := s.ctx(c)
	defer cancel()
	info, err := si.SystemInfo(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, systemResponse{envelope: ok(), SystemInfo: *info})
}

func (s *Server) handleSubmitRun(c *gin.Context) {
	var in deployRequest
	if !s.bind(c, "submit run", &in) {
		return
	}
	req := in.provisioningRequest()
	if err := req.Normalized().Validate(); err != nil {
		s.fail(c, err)
		return
	}

	run, err := s.runs.Submit(s.runCtx, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusAccepted, runResponse{envelope: ok(), RunStatus: run.Status()})
}

func (s *Server) handleListRuns(c *gin.Context) {
	runs := s.runs.Runs()
	out := make([]provision.RunStatus, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Status())
	}
	respond(c, http.StatusOK, runsResponse{envelope: ok(), Runs: out})
}

func (s *Server) handleGetRun(c *gin.Context) {
	id := c.Param("id")
	run, found := s.runs.Lookup(id)
	if !found {
		s.fail(c, remote.Rejected("get run", id, remote.ErrNotFound))
		return
	}
	respond(c, http.StatusOK, runResponse{envelope: ok(), RunStatus: run.Status()})
}

func (s *Server) handleDismissRun(c *gin.Context) {
	id := c.Param("id")
	if _, found := s.runs.Lookup(id); !found {
		s.fail(c, remote.Rejected("dismiss run", id, remote.ErrNotFound))
		return
	}
	if !s.runs.Dismiss(id) {
		s.fail(c, remote.Precondition("dismiss run", id, errRunNotDismissable))
		return
	}
	respond(c, http.StatusOK, ok())
}
