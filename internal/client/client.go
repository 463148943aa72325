// Package client talks to the activities backend: it fetches snapshots and
// performs the register and unregister mutations.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/activities"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader carries the per-request identifier used in diagnostics.
	RequestIDHeader = "X-Request-ID"

	// DefaultRegisterDetail is shown when a failed signup response has no detail.
	DefaultRegisterDetail = "An error occurred"
	// DefaultUnregisterDetail is shown when a failed unregister response has no detail.
	DefaultUnregisterDetail = "Failed to unregister participant."
	// RegisterTransportDetail is shown when a signup request never completes.
	RegisterTransportDetail = "Failed to sign up. Please try again."
	// UnregisterTransportDetail is shown when an unregister request never completes.
	UnregisterTransportDetail = "Failed to unregister participant. Please try again."

	activitiesPath    = "/activities"
	maxResponseBytes  = 4 << 20
	opFetchActivities = "client.fetch_activities"
	opRegister        = "client.register"
	opUnregister      = "client.unregister"
)

var (
	// ErrFetchFailed indicates that the activity list could not be loaded.
	ErrFetchFailed = errors.New("client: fetch activities failed")
	// ErrUnexpectedStatus indicates a non-2xx answer to GET /activities.
	ErrUnexpectedStatus = errors.New("client: unexpected status")

	errMissingBaseURL = errors.New("client: backend base url required")
)

// FailureKind distinguishes why a mutation did not succeed.
type FailureKind string

const (
	// FailureNone marks a successful outcome.
	FailureNone FailureKind = ""
	// FailureHTTP marks a completed request answered with a non-2xx status.
	FailureHTTP FailureKind = "http"
	// FailureTransport marks a request that never completed.
	FailureTransport FailureKind = "transport"
)

// Outcome is the normalized result of a mutation.
type Outcome struct {
	OK      bool
	Message string
	Detail  string
	Status  int
	Failure FailureKind
	Err     error
}

// IDProvider issues request identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidRequestIDs struct{}

func (uuidRequestIDs) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Config wires a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds each request when HTTPClient is nil. Zero means no limit.
	Timeout    time.Duration
	RequestIDs IDProvider
	Logger     *zap.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	requestIDs IDProvider
	logger     *zap.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errMissingBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("client: invalid backend base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	requestIDs := cfg.RequestIDs
	if requestIDs == nil {
		requestIDs = uuidRequestIDs{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		requestIDs: requestIDs,
		logger:     logger,
	}, nil
}

// FetchActivities loads the full snapshot. Transport errors, non-2xx answers
// and malformed bodies all wrap ErrFetchFailed.
func (c *Client) FetchActivities(ctx context.Context) (activities.Snapshot, error) {
	request, requestID, err := c.newRequest(ctx, http.MethodGet, c.baseURL+activitiesPath)
	if err != nil {
		return activities.Snapshot{}, c.fetchFailure(requestID, "request_build_failed", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return activities.Snapshot{}, c.fetchFailure(requestID, "transport_failed", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return activities.Snapshot{}, c.fetchFailure(requestID, "unexpected_status",
			fmt.Errorf("%w: %d", ErrUnexpectedStatus, response.StatusCode))
	}

	snapshot, err := activities.DecodeSnapshot(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return activities.Snapshot{}, c.fetchFailure(requestID, "decode_failed", err)
	}
	return snapshot, nil
}

// Register signs email up for the named activity.
func (c *Client) Register(ctx context.Context, name activities.ActivityName, email string) Outcome {
	return c.mutate(ctx, mutation{
		operation:       opRegister,
		method:          http.MethodPost,
		name:            name,
		email:           email,
		defaultDetail:   DefaultRegisterDetail,
		transportDetail: RegisterTransportDetail,
	})
}

// Unregister removes email from the named activity.
func (c *Client) Unregister(ctx context.Context, name activities.ActivityName, email string) Outcome {
	return c.mutate(ctx, mutation{
		operation:       opUnregister,
		method:          http.MethodDelete,
		name:            name,
		email:           email,
		defaultDetail:   DefaultUnregisterDetail,
		transportDetail: UnregisterTransportDetail,
	})
}

// SignupURL returns the percent-encoded signup endpoint for name and email.
func (c *Client) SignupURL(name activities.ActivityName, email string) string {
	return c.baseURL + SignupPath(name, email)
}

// SignupPath builds /activities/{name}/signup?email={email}. The name is
// escaped as a single path segment and the email as a query component.
func SignupPath(name activities.ActivityName, email string) string {
	return activitiesPath + "/" + url.PathEscape(name.String()) + "/signup?email=" + url.QueryEscape(email)
}

type mutation struct {
	operation       string
	method          string
	name            activities.ActivityName
	email           string
	defaultDetail   string
	transportDetail string
}

type mutationPayload struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (c *Client) mutate(ctx context.Context, m mutation) Outcome {
	request, requestID, err := c.newRequest(ctx, m.method, c.SignupURL(m.name, m.email))
	if err != nil {
		return c.transportFailure(m, requestID, err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return c.transportFailure(m, requestID, err)
	}
	defer response.Body.Close()

	var payload mutationPayload
	decodeErr := json.NewDecoder(io.LimitReader(response.Body, maxResponseBytes)).Decode(&payload)

	if response.StatusCode >= 200 && response.StatusCode <= 299 {
		if decodeErr != nil {
			c.logger.Warn("mutation response body unreadable",
				zap.String("operation", m.operation),
				zap.String("request_id", requestID),
				zap.Error(decodeErr))
		}
		return Outcome{OK: true, Message: payload.Message, Status: response.StatusCode}
	}

	detail := payload.Detail
	if detail == "" {
		detail = m.defaultDetail
	}
	c.logger.Info("mutation rejected by backend",
		zap.String("operation", m.operation),
		zap.String("failure", string(FailureHTTP)),
		zap.String("request_id", requestID),
		zap.String("activity", m.name.String()),
		zap.Int("status", response.StatusCode),
		zap.String("detail", detail))
	return Outcome{
		Detail:  detail,
		Status:  response.StatusCode,
		Failure: FailureHTTP,
		Err:     fmt.Errorf("%s: status %d", m.operation, response.StatusCode),
	}
}

func (c *Client) transportFailure(m mutation, requestID string, err error) Outcome {
	c.logger.Error("mutation request did not complete",
		zap.String("operation", m.operation),
		zap.String("failure", string(FailureTransport)),
		zap.String("request_id", requestID),
		zap.String("activity", m.name.String()),
		zap.Error(err))
	return Outcome{
		Detail:  m.transportDetail,
		Failure: FailureTransport,
		Err:     err,
	}
}

func (c *Client) fetchFailure(requestID, reason string, err error) error {
	c.logger.Error("fetch activities failed",
		zap.String("operation", opFetchActivities),
		zap.String("reason", reason),
		zap.String("request_id", requestID),
		zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrFetchFailed, reason, err)
}

func (c *Client) newRequest(ctx context.Context, method, target string) (*http.Request, string, error) {
	requestID, err := c.requestIDs.NewID()
	if err != nil {
		return nil, "", err
	}
	request, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return nil, requestID, err
	}
	request.Header.Set(RequestIDHeader, requestID)
	return request, requestID, nil
}
