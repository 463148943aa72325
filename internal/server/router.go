package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/view"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultSettleTimeout     = 10 * time.Second
	defaultHeartbeatInterval = 25 * time.Second

	formFieldActivity = "activity"
	formFieldEmail    = "email"
	formFieldTarget   = "target"
)

var (
	errMissingViewController = errors.New("view controller dependency required")
	errMissingRealtime       = errors.New("realtime dispatcher dependency required")
)

// ViewController is the page surface the HTTP layer drives.
type ViewController interface {
	RenderHTML(ctx context.Context) ([]byte, error)
	Submit(ctx context.Context, activityName, email string) error
	Click(ctx context.Context, targetID string) error
	Settle(ctx context.Context) error
	State(ctx context.Context) (view.State, error)
}

type Dependencies struct {
	View     ViewController
	Realtime *RealtimeDispatcher
	Logger   *zap.Logger
	// RateLimit is the per-client rate of /ui posts per second. Zero disables it.
	RateLimit float64
	RateBurst int
	// SettleTimeout bounds how long a /ui post waits for the page to settle.
	SettleTimeout     time.Duration
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.View == nil {
		return nil, errMissingViewController
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settleTimeout := deps.SettleTimeout
	if settleTimeout <= 0 {
		settleTimeout = defaultSettleTimeout
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		view:          deps.View,
		realtime:      deps.Realtime,
		logger:        logger,
		settleTimeout: settleTimeout,
		heartbeat:     heartbeat,
	}

	router.GET("/", handler.handlePage)
	router.GET("/healthz", handler.handleHealth)

	ui := router.Group("/ui")
	ui.GET("/state", handler.handleState)
	ui.GET("/stream", handler.handleStream)

	actions := ui.Group("/")
	if deps.RateLimit > 0 {
		actions.Use(NewRateLimiter(deps.RateLimit, deps.RateBurst).Limit())
	}
	actions.POST("/submit", handler.handleSubmit)
	actions.POST("/click", handler.handleClick)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	view          ViewController
	realtime      *RealtimeDispatcher
	logger        *zap.Logger
	settleTimeout time.Duration
	heartbeat     time.Duration
}

func (h *httpHandler) handlePage(c *gin.Context) {
	markup, err := h.view.RenderHTML(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to render page", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "view_unavailable"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", markup)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleState(c *gin.Context) {
	state, err := h.view.State(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read view state", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "view_unavailable"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	activityName := c.PostForm(formFieldActivity)
	email := c.PostForm(formFieldEmail)
	if activityName == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.runAction(c, "submit", func(ctx context.Context) error {
		return h.view.Submit(ctx, activityName, email)
	})
}

func (h *httpHandler) handleClick(c *gin.Context) {
	target := c.PostForm(formFieldTarget)
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.runAction(c, "click", func(ctx context.Context) error {
		return h.view.Click(ctx, target)
	})
}

// runAction dispatches the user action, waits for the resulting requests and
// repaints, then answers with the page (303) or the state for JSON clients.
func (h *httpHandler) runAction(c *gin.Context, action string, dispatch func(context.Context) error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.settleTimeout)
	defer cancel()

	if err := dispatch(ctx); err != nil {
		h.logger.Error("failed to dispatch view action", zap.String("action", action), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "view_unavailable"})
		return
	}
	if err := h.view.Settle(ctx); err != nil {
		h.logger.Warn("view did not settle before deadline", zap.String("action", action), zap.Error(err))
	}

	if c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON {
		h.handleState(c)
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

type streamEventPayload struct {
	Kind      view.ChangeKind `json:"kind,omitempty"`
	Phase     view.Phase      `json:"phase,omitempty"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

func (h *httpHandler) handleStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(realtimeEventHeartbeat, streamEventPayload{Source: realtimeSourceView, Timestamp: time.Now().UTC()})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, streamEventPayload{
				Kind:      message.Kind,
				Phase:     message.Phase,
				Source:    realtimeSourceView,
				Timestamp: message.Timestamp,
			})
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, streamEventPayload{Source: realtimeSourceView, Timestamp: time.Now().UTC()})
			return true
		}
	})
}
