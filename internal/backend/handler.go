package backend

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/activities"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	activitiesPrefix = "/activities/"

	detailActivityNotFound = "Activity not found"
	detailAlreadySignedUp  = "Student is already signed up"
	detailNotSignedUp      = "Student is not signed up for this activity"
	detailMissingEmail     = "Email query parameter is required"
	detailInternal         = "Internal server error"
)

var errMissingService = errors.New("activities service dependency required")

type Dependencies struct {
	Service *Service
	Logger  *zap.Logger
}

// NewHTTPHandler serves GET /activities and the signup mutations. Activity
// names travel as one percent-encoded path segment, so routing matches on the
// raw path and the name is decoded from the escaped segment.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Service == nil {
		return nil, errMissingService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.UseRawPath = true
	router.UnescapePathValues = false
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{service: deps.Service, logger: logger}

	router.GET("/activities", handler.handleList)
	router.POST("/activities/:name/signup", handler.handleSignup)
	router.DELETE("/activities/:name/signup", handler.handleUnregister)

	return router, nil
}

type httpHandler struct {
	service *Service
	logger  *zap.Logger
}

func (h *httpHandler) handleList(c *gin.Context) {
	snapshot, err := h.service.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list activities", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": detailInternal})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	name := activityName(c)
	email := c.Query("email")

	if err := h.service.Signup(c.Request.Context(), name, email); err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Signed up %s for %s", email, name)})
}

func (h *httpHandler) handleUnregister(c *gin.Context) {
	name := activityName(c)
	email := c.Query("email")

	if err := h.service.Unregister(c.Request.Context(), name, email); err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Unregistered %s from %s", email, name)})
}

// activityName decodes the name segment exactly once. "+" stays literal.
func activityName(c *gin.Context) activities.ActivityName {
	segment := strings.TrimPrefix(c.Request.URL.EscapedPath(), activitiesPrefix)
	if index := strings.IndexByte(segment, '/'); index >= 0 {
		segment = segment[:index]
	}
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return activities.ActivityName(c.Param("name"))
	}
	return activities.ActivityName(decoded)
}

func (h *httpHandler) writeMutationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrActivityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": detailActivityNotFound})
	case errors.Is(err, ErrAlreadySignedUp):
		c.JSON(http.StatusBadRequest, gin.H{"detail": detailAlreadySignedUp})
	case errors.Is(err, ErrNotSignedUp):
		c.JSON(http.StatusNotFound, gin.H{"detail": detailNotSignedUp})
	case errors.Is(err, ErrMissingEmail):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": detailMissingEmail})
	default:
		h.logger.Error("activity mutation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": detailInternal})
	}
}
