// Package skillrpc is the HTTP boundary for skill dispatch: the server
// exposes the registry over gin, and the client lets a remote orchestrator
// (or the scheduler) call it with timeouts. In-process deployments skip this
// package and talk to the registry directly.
package skillrpc

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"aide/internal/logging"
	"aide/internal/skills"
	"aide/internal/types"
)

// heartbeatRequest is the POST /heartbeat body.
type heartbeatRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

// heartbeatResponse is the POST /heartbeat reply.
type heartbeatResponse struct {
	Actions []types.HeartbeatAction `json:"actions"`
}

// healthResponse is the GET /health reply.
type healthResponse struct {
	Status string   `json:"status"`
	Skills []string `json:"skills"`
}

// Server serves the skill registry over HTTP.
type Server struct {
	registry *skills.Registry
	log      *zap.Logger
	http     *http.Server
}

// NewServer creates a skill RPC server on the given listen address.
func NewServer(addr string, registry *skills.Registry) *Server {
	s := &Server{
		registry: registry,
		log:      logging.Named(logging.ComponentRPC),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/skill/request", s.handleRequest)
	router.POST("/heartbeat", s.handleHeartbeat)
	router.GET("/health", s.handleHealth)

	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

// Handler exposes the routes for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	s.log.Info("skill rpc listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleRequest(c *gin.Context) {
	var req types.SkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse("", "malformed skill request: "+err.Error()))
		return
	}

	intent, ok := types.ParseIntent(stringFromContext(req.Context, "message_intent"))
	if !ok {
		c.JSON(http.StatusOK, types.ErrorResponse(req.ID, "request carries no valid message_intent"))
		return
	}
	c.JSON(http.StatusOK, s.registry.Dispatch(c.Request.Context(), intent, req))
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed heartbeat request"})
		return
	}
	actions, err := s.registry.CollectActions(c.Request.Context(), req.UserIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if actions == nil {
		actions = []types.HeartbeatAction{}
	}
	c.JSON(http.StatusOK, heartbeatResponse{Actions: actions})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok", Skills: s.registry.Names()})
}

func stringFromContext(ctx map[string]any, key string) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx[key].(string)
	return v
}
