package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/roster/internal/activities"
	"github.com/gin-gonic/gin"
)

func newTestHandler(t *testing.T, entries []activities.Entry) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	service, _ := newTestService(t, entries)
	handler, err := NewHTTPHandler(Dependencies{Service: service})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return handler
}

func serve(handler http.Handler, method, target string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode body %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestGetActivitiesReturnsOrderedSnapshot(t *testing.T) {
	handler := newTestHandler(t, DefaultActivities())

	recorder := serve(handler, http.MethodGet, "/activities")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	snapshot, err := activities.DecodeSnapshot(recorder.Body)
	if err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	names := snapshot.Names()
	if len(names) != 3 || names[0] != "Chess Club" || names[2] != "Gym Class" {
		t.Fatalf("unexpected activity order %v", names)
	}
	chess, _ := snapshot.Lookup("Chess Club")
	if chess.Description == "" || chess.Schedule == "" || chess.MaxParticipants != 12 {
		t.Fatalf("unexpected chess detail %#v", chess)
	}
}

func TestSignupEndpoint(t *testing.T) {
	testCases := []struct {
		name        string
		target      string
		wantStatus  int
		wantKey     string
		wantContain string
	}{
		{name: "success", target: "/activities/Chess%20Club/signup?email=newstudent%40mergington.edu", wantStatus: http.StatusOK, wantKey: "message", wantContain: "newstudent@mergington.edu"},
		{name: "not-found", target: "/activities/Nonexistent%20Club/signup?email=anyone%40mergington.edu", wantStatus: http.StatusNotFound, wantKey: "detail", wantContain: "Activity not found"},
		{name: "duplicate", target: "/activities/Chess%20Club/signup?email=michael%40mergington.edu", wantStatus: http.StatusBadRequest, wantKey: "detail", wantContain: "already signed up"},
		{name: "missing-email", target: "/activities/Chess%20Club/signup", wantStatus: http.StatusUnprocessableEntity, wantKey: "detail", wantContain: "Email"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			handler := newTestHandler(t, DefaultActivities())
			recorder := serve(handler, http.MethodPost, testCase.target)
			if recorder.Code != testCase.wantStatus {
				t.Fatalf("expected %d, got %d: %s", testCase.wantStatus, recorder.Code, recorder.Body.String())
			}
			payload := decodeBody(t, recorder)
			if !strings.Contains(payload[testCase.wantKey], testCase.wantContain) {
				t.Fatalf("expected %s to contain %q, got %v", testCase.wantKey, testCase.wantContain, payload)
			}
		})
	}
}

func TestSignupMessageFormat(t *testing.T) {
	handler := newTestHandler(t, DefaultActivities())

	recorder := serve(handler, http.MethodPost, "/activities/Chess%20Club/signup?email=a%40b.com")
	if message := decodeBody(t, recorder)["message"]; message != "Signed up a@b.com for Chess Club" {
		t.Fatalf("unexpected message %q", message)
	}
}

func TestSignupDecodesEscapedSlashInName(t *testing.T) {
	entry := activities.Entry{Name: "Art & Design/2", Detail: activities.Detail{MaxParticipants: 5}}
	handler := newTestHandler(t, []activities.Entry{entry})

	recorder := serve(handler, http.MethodPost, "/activities/Art%20&%20Design%2F2/signup?email=a%2Bb%40x.com")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if message := decodeBody(t, recorder)["message"]; message != "Signed up a+b@x.com for Art & Design/2" {
		t.Fatalf("unexpected message %q", message)
	}
}

func TestSignupKeepsPlusInName(t *testing.T) {
	entry := activities.Entry{Name: "C++ Club", Detail: activities.Detail{MaxParticipants: 5}}
	handler := newTestHandler(t, []activities.Entry{entry})

	recorder := serve(handler, http.MethodPost, "/activities/C++%20Club/signup?email=a%40b.com")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestUnregisterEndpoint(t *testing.T) {
	testCases := []struct {
		name       string
		target     string
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{name: "success", target: "/activities/Chess%20Club/signup?email=michael%40mergington.edu", wantStatus: http.StatusOK, wantKey: "message", wantValue: "Unregistered michael@mergington.edu from Chess Club"},
		{name: "not-found", target: "/activities/Nonexistent%20Club/signup?email=anyone%40mergington.edu", wantStatus: http.StatusNotFound, wantKey: "detail", wantValue: "Activity not found"},
		{name: "not-signed-up", target: "/activities/Chess%20Club/signup?email=nobody%40mergington.edu", wantStatus: http.StatusNotFound, wantKey: "detail", wantValue: "Student is not signed up for this activity"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			handler := newTestHandler(t, DefaultActivities())
			recorder := serve(handler, http.MethodDelete, testCase.target)
			if recorder.Code != testCase.wantStatus {
				t.Fatalf("expected %d, got %d", testCase.wantStatus, recorder.Code)
			}
			if value := decodeBody(t, recorder)[testCase.wantKey]; value != testCase.wantValue {
				t.Fatalf("expected %s %q, got %q", testCase.wantKey, testCase.wantValue, value)
			}
		})
	}
}

func TestUnregisterThenListOmitsParticipant(t *testing.T) {
	handler := newTestHandler(t, DefaultActivities())

	serve(handler, http.MethodDelete, "/activities/Chess%20Club/signup?email=michael%40mergington.edu")
	recorder := serve(handler, http.MethodGet, "/activities")
	snapshot, err := activities.DecodeSnapshot(recorder.Body)
	if err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	chess, _ := snapshot.Lookup("Chess Club")
	for _, participant := range chess.Participants {
		if participant == "michael@mergington.edu" {
			t.Fatalf("expected participant removed, got %v", chess.Participants)
		}
	}
}

func TestNewHTTPHandlerRequiresService(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected missing service error")
	}
}

func TestActivityNameDecodesEscapedSegmentOnce(t *testing.T) {
	gin.SetMode(gin.TestMode)
	testCases := map[string]activities.ActivityName{
		"/activities/Chess%20Club/signup":         "Chess Club",
		"/activities/Art%20&%20Design%2F2/signup": "Art & Design/2",
		"/activities/C++%20Club/signup":           "C++ Club",
		"/activities/100%2525%20Effort/signup":    "100%25 Effort",
	}
	for target, expected := range testCases {
		recorder := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(recorder)
		c.Request = httptest.NewRequest(http.MethodPost, target, nil)
		if name := activityName(c); name != expected {
			t.Fatalf("activityName(%q) = %q, expected %q", target, name, expected)
		}
	}
}

func TestSignupStoresEmailAsSent(t *testing.T) {
	handler := newTestHandler(t, DefaultActivities())

	recorder := serve(handler, http.MethodPost, "/activities/Chess%20Club/signup?email=%20a%40b.com")
	if message := decodeBody(t, recorder)["message"]; message != "Signed up  a@b.com for Chess Club" {
		t.Fatalf("unexpected message %q", message)
	}
	snapshot, err := activities.DecodeSnapshot(serve(handler, http.MethodGet, "/activities").Body)
	if err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	chess, _ := snapshot.Lookup("Chess Club")
	if last := chess.Participants[len(chess.Participants)-1]; last != " a@b.com" {
		t.Fatalf("expected stored email to match the message, got %q", last)
	}

	recorder = serve(handler, http.MethodDelete, "/activities/Chess%20Club/signup?email=a%40b.com")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected trimmed email not to match, got %d", recorder.Code)
	}
	recorder = serve(handler, http.MethodDelete, "/activities/Chess%20Club/signup?email=%20a%40b.com")
	if message := decodeBody(t, recorder)["message"]; message != "Unregistered  a@b.com from Chess Club" {
		t.Fatalf("unexpected message %q", message)
	}
}
