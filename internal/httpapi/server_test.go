package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/speakbot/internal/conversation"
	"github.com/ent0n29/speakbot/internal/identity"
	"github.com/ent0n29/speakbot/internal/observability"
	"github.com/ent0n29/speakbot/internal/session"
	"github.com/ent0n29/speakbot/internal/usage"
)

type stubUsage struct {
	snap usage.Snapshot
	err  error
	keys []string
}

func (s *stubUsage) Today(_ context.Context, userKey string) (usage.Snapshot, error) {
	s.keys = append(s.keys, userKey)
	snap := s.snap
	snap.UserKey = userKey
	return snap, s.err
}

func newTestMetrics(prefix string) *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano()))
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, res.StatusCode, wantStatus)
	}
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return payload
}

func TestHealthAndReadiness(t *testing.T) {
	status := Status{StoreMode: "in-memory", TallyMode: "in-memory", LLMProvider: "mock", SpeechProvider: "mock", Entitlement: "disabled"}
	srv := New(status, session.NewManager(time.Hour), nil, newTestMetrics("test_httpapi_health"), nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	health := getJSON(t, ts.URL+"/healthz", http.StatusOK)
	wiring, _ := health["wiring"].(map[string]any)
	if wiring["store_mode"] != "in-memory" || wiring["llm_provider"] != "mock" {
		t.Fatalf("unexpected wiring: %+v", health)
	}

	getJSON(t, ts.URL+"/readyz", http.StatusServiceUnavailable)
	windows := conversation.NewStore(conversation.DefaultMaxTurns)
	windows.Append(identity.Key(1), "hi", "hello")
	srv.SetConversations(windows)
	srv.SetReady(true)
	ready := getJSON(t, ts.URL+"/readyz", http.StatusOK)
	if ready["status"] != "ready" {
		t.Fatalf("readyz status = %v, want ready", ready["status"])
	}
	if ready["conversations"] != float64(1) || ready["active_users"] != float64(0) {
		t.Fatalf("unexpected readyz payload: %+v", ready)
	}
}

func TestUserUsage(t *testing.T) {
	reporter := &stubUsage{snap: usage.Snapshot{Day: "2024-05-01", Count: 2, Quota: 10, Gating: true}}
	srv := New(Status{}, nil, reporter, nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	payload := getJSON(t, ts.URL+"/v1/users/100/usage", http.StatusOK)
	if payload["user_key"] != identity.Key(100) {
		t.Fatalf("user_key = %v, want %s", payload["user_key"], identity.Key(100))
	}
	if payload["count"] != float64(2) || payload["quota"] != float64(10) {
		t.Fatalf("unexpected usage payload: %+v", payload)
	}

	upper := "0x" + strings.ToUpper(strings.TrimPrefix(identity.Key(100), "0x"))
	getJSON(t, ts.URL+"/v1/users/"+upper+"/usage", http.StatusOK)
	if reporter.keys[1] != identity.Key(100) {
		t.Fatalf("key not normalized: %q", reporter.keys[1])
	}

	getJSON(t, ts.URL+"/v1/users/not-a-key/usage", http.StatusBadRequest)

	reporter.err = errors.New("redis down")
	getJSON(t, ts.URL+"/v1/users/100/usage", http.StatusBadGateway)
}

func TestUserSession(t *testing.T) {
	sessions := session.NewManager(time.Hour)
	ticket := sessions.Reserve(identity.Key(7))
	ticket.Touch(7, 70)
	ticket.Release()

	srv := New(Status{}, sessions, nil, nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	payload := getJSON(t, ts.URL+"/v1/users/7/session", http.StatusOK)
	if payload["chat_id"] != float64(70) || payload["messages"] != float64(1) {
		t.Fatalf("unexpected session payload: %+v", payload)
	}
	getJSON(t, ts.URL+"/v1/users/8/session", http.StatusNotFound)
}

func TestPerfLatency(t *testing.T) {
	metrics := newTestMetrics("test_httpapi_perf")
	metrics.ObserveStage(observability.StageCompletion, 120*time.Millisecond)
	srv := New(Status{}, nil, nil, metrics, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	payload := getJSON(t, ts.URL+"/v1/perf/latency", http.StatusOK)
	stages, _ := payload["stages"].([]any)
	if len(stages) == 0 {
		t.Fatalf("expected at least one stage: %+v", payload)
	}

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", res.StatusCode)
	}
}
