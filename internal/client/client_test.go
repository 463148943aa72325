package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordedRequest struct {
	method      string
	escapedPath string
	email       string
	requestID   string
}

type requestLog struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (log *requestLog) record(request recordedRequest) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.requests = append(log.requests, request)
}

func (log *requestLog) all() []recordedRequest {
	log.mu.Lock()
	defer log.mu.Unlock()
	return append([]recordedRequest(nil), log.requests...)
}

func newBackend(t *testing.T, status int, body string) (*httptest.Server, *requestLog) {
	t.Helper()
	requests := &requestLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.record(recordedRequest{
			method:      r.Method,
			escapedPath: r.URL.EscapedPath(),
			email:       r.URL.Query().Get("email"),
			requestID:   r.Header.Get(RequestIDHeader),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, requests
}

func mustClient(t *testing.T, baseURL string, logger *zap.Logger) *Client {
	t.Helper()
	client, err := New(Config{BaseURL: baseURL, Logger: logger})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	return client
}

func TestRegisterEncodesPathAndQuery(t *testing.T) {
	server, requests := newBackend(t, http.StatusOK, `{"message":"Signed up a+b@x.com for Art & Design/2"}`)
	client := mustClient(t, server.URL, nil)

	outcome := client.Register(context.Background(), "Art & Design/2", "a+b@x.com")

	if !outcome.OK || outcome.Message != "Signed up a+b@x.com for Art & Design/2" {
		t.Fatalf("unexpected outcome %#v", outcome)
	}
	recorded := requests.all()
	if len(recorded) != 1 {
		t.Fatalf("expected one request, got %d", len(recorded))
	}
	if recorded[0].method != http.MethodPost {
		t.Fatalf("expected POST, got %s", recorded[0].method)
	}
	if recorded[0].escapedPath != "/activities/Art%20&%20Design%2F2/signup" {
		t.Fatalf("unexpected escaped path %q", recorded[0].escapedPath)
	}
	if recorded[0].email != "a+b@x.com" {
		t.Fatalf("unexpected decoded email %q", recorded[0].email)
	}
	if recorded[0].requestID == "" {
		t.Fatalf("expected request id header")
	}
}

func TestUnregisterUsesDelete(t *testing.T) {
	server, requests := newBackend(t, http.StatusOK, `{"message":"Unregistered a@b.com from Chess Club"}`)
	client := mustClient(t, server.URL, nil)

	outcome := client.Unregister(context.Background(), "Chess Club", "a@b.com")

	if !outcome.OK || outcome.Failure != FailureNone {
		t.Fatalf("unexpected outcome %#v", outcome)
	}
	recorded := requests.all()[0]
	if recorded.method != http.MethodDelete || recorded.escapedPath != "/activities/Chess%20Club/signup" || recorded.email != "a@b.com" {
		t.Fatalf("unexpected request %#v", recorded)
	}
}

func TestMutationHTTPFailures(t *testing.T) {
	testCases := []struct {
		name       string
		unregister bool
		status     int
		body       string
		wantDetail string
	}{
		{name: "register-detail", status: http.StatusBadRequest, body: `{"detail":"Already signed up"}`, wantDetail: "Already signed up"},
		{name: "register-default", status: http.StatusInternalServerError, body: `{}`, wantDetail: DefaultRegisterDetail},
		{name: "register-non-json", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, wantDetail: DefaultRegisterDetail},
		{name: "unregister-detail", unregister: true, status: http.StatusNotFound, body: `{"detail":"Activity not found"}`, wantDetail: "Activity not found"},
		{name: "unregister-default", unregister: true, status: http.StatusNotFound, body: `{"message":"ignored"}`, wantDetail: DefaultUnregisterDetail},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server, _ := newBackend(t, testCase.status, testCase.body)
			client := mustClient(t, server.URL, nil)

			var outcome Outcome
			if testCase.unregister {
				outcome = client.Unregister(context.Background(), "Chess Club", "a@b.com")
			} else {
				outcome = client.Register(context.Background(), "Chess Club", "a@b.com")
			}

			if outcome.OK {
				t.Fatalf("expected failure outcome")
			}
			if outcome.Failure != FailureHTTP {
				t.Fatalf("expected http failure, got %q", outcome.Failure)
			}
			if outcome.Status != testCase.status {
				t.Fatalf("expected status %d, got %d", testCase.status, outcome.Status)
			}
			if outcome.Detail != testCase.wantDetail {
				t.Fatalf("expected detail %q, got %q", testCase.wantDetail, outcome.Detail)
			}
		})
	}
}

func TestMutationTransportFailureIsDistinct(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	client := mustClient(t, baseURL, zap.New(core))

	registerOutcome := client.Register(context.Background(), "Chess Club", "a@b.com")
	if registerOutcome.OK || registerOutcome.Failure != FailureTransport || registerOutcome.Detail != RegisterTransportDetail {
		t.Fatalf("unexpected register outcome %#v", registerOutcome)
	}
	if registerOutcome.Err == nil {
		t.Fatalf("expected underlying transport error")
	}

	unregisterOutcome := client.Unregister(context.Background(), "Chess Club", "a@b.com")
	if unregisterOutcome.Failure != FailureTransport || unregisterOutcome.Detail != UnregisterTransportDetail {
		t.Fatalf("unexpected unregister outcome %#v", unregisterOutcome)
	}

	entries := logs.FilterMessage("mutation request did not complete").All()
	if len(entries) != 2 {
		t.Fatalf("expected two transport diagnostics, got %d", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level, got %s", entries[0].Level)
	}
	if entries[0].ContextMap()["failure"] != string(FailureTransport) {
		t.Fatalf("expected failure kind in log context, got %v", entries[0].ContextMap())
	}
}

func TestMutationHTTPFailureLogsFailureKind(t *testing.T) {
	server, _ := newBackend(t, http.StatusBadRequest, `{"detail":"Already signed up"}`)
	core, logs := observer.New(zapcore.DebugLevel)
	client := mustClient(t, server.URL, zap.New(core))

	client.Register(context.Background(), "Chess Club", "a@b.com")

	entries := logs.FilterMessage("mutation rejected by backend").All()
	if len(entries) != 1 {
		t.Fatalf("expected one http failure diagnostic, got %d", len(entries))
	}
	if entries[0].ContextMap()["failure"] != string(FailureHTTP) {
		t.Fatalf("expected http failure kind, got %v", entries[0].ContextMap())
	}
}

func TestFetchActivitiesDecodesSnapshot(t *testing.T) {
	server, requests := newBackend(t, http.StatusOK,
		`{"Chess Club":{"description":"d","schedule":"s","max_participants":10,"participants":["a@b.com"]}}`)
	client := mustClient(t, server.URL+"/", nil)

	snapshot, err := client.FetchActivities(context.Background())
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	detail, ok := snapshot.Lookup("Chess Club")
	if !ok || detail.SpotsLeft() != 9 {
		t.Fatalf("unexpected snapshot %#v", detail)
	}
	recorded := requests.all()
	if recorded[0].method != http.MethodGet || recorded[0].escapedPath != "/activities" {
		t.Fatalf("unexpected request %#v", recorded[0])
	}
}

func TestFetchActivitiesFailures(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server-error", status: http.StatusInternalServerError, body: `{"detail":"boom"}`},
		{name: "not-json", status: http.StatusOK, body: `<html></html>`},
		{name: "wrong-shape", status: http.StatusOK, body: `{"Chess Club":{"description":"d"}}`},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server, _ := newBackend(t, testCase.status, testCase.body)
			client := mustClient(t, server.URL, nil)
			if _, err := client.FetchActivities(context.Background()); !errors.Is(err, ErrFetchFailed) {
				t.Fatalf("expected ErrFetchFailed, got %v", err)
			}
		})
	}

	t.Run("transport", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		baseURL := server.URL
		server.Close()
		client := mustClient(t, baseURL, nil)
		if _, err := client.FetchActivities(context.Background()); !errors.Is(err, ErrFetchFailed) {
			t.Fatalf("expected ErrFetchFailed, got %v", err)
		}
	})
}

func TestNewRejectsMissingBaseURL(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, errMissingBaseURL) {
		t.Fatalf("expected missing base url error, got %v", err)
	}
}

func TestSignupPath(t *testing.T) {
	path := SignupPath("Chess Club", "a@b.com")
	if path != "/activities/Chess%20Club/signup?email=a%40b.com" {
		t.Fatalf("unexpected path %q", path)
	}
}
