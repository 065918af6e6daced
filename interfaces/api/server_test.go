package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/opsquery/application"
	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/domain/pack"
	"github.com/felixgeelhaar/opsquery/infrastructure/gateway"
	"github.com/felixgeelhaar/opsquery/infrastructure/storage/memory"
	"github.com/felixgeelhaar/opsquery/pack/identity"
	"github.com/felixgeelhaar/opsquery/pack/timewindow"
)

type runnerFunc func(ctx context.Context, query string, opts ...application.RunOption) (agent.FinalResult, error)

func (f runnerFunc) Run(ctx context.Context, query string, opts ...application.RunOption) (agent.FinalResult, error) {
	return f(ctx, query, opts...)
}

func newTestOrchestrator(t *testing.T) (*application.Orchestrator, *memory.ToolRegistry) {
	t.Helper()
	tools, err := pack.Tools(timewindow.New(), identity.New())
	if err != nil {
		t.Fatal(err)
	}
	registry := memory.MustToolRegistry(tools...)

	gw := gateway.NewScriptedGateway().
		Always(gateway.PurposeClassify, gateway.Structured(map[string]any{"in_scope": true, "rationale": "ok"})).
		Always(gateway.PurposeAct, gateway.Text("Nothing to resolve.")).
		Always(gateway.PurposeFinalize, gateway.Structured(map[string]any{"summary": "Nothing to resolve."}))

	o, err := application.NewOrchestratorWithOptions(
		application.WithGateway(gw),
		application.WithRegistry(registry),
		application.WithLocation(time.UTC),
	)
	if err != nil {
		t.Fatal(err)
	}
	return o, registry
}

func newTestServer(t *testing.T, runner Runner, mutate func(*Config)) *httptest.Server {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(runner, cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNewServer_RequiresRunner(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(nil, DefaultConfig()); !errors.Is(err, ErrNoRunner) {
		t.Errorf("NewServer(nil) error = %v, want ErrNoRunner", err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t)
	srv := newTestServer(t, o, func(c *Config) { c.Version = "1.2.3" })

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" || body["version"] != "1.2.3" {
		t.Errorf("GET /health = %d %v", resp.StatusCode, body)
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t)
	srv := newTestServer(t, o, nil)

	resp := post(t, srv.URL+"/api/query", `{"query":"cpu of pod web-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result agent.FinalResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Status != agent.StatusCompleted || result.Summary != "Nothing to resolve." {
		t.Errorf("result = %+v", result)
	}
	if result.Query != "cpu of pod web-1" || result.RunID == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestQuery_BadRequests(t *testing.T) {
	t.Parallel()

	called := false
	runner := runnerFunc(func(context.Context, string, ...application.RunOption) (agent.FinalResult, error) {
		called = true
		return agent.FinalResult{}, nil
	})
	srv := newTestServer(t, runner, func(c *Config) { c.MaxQueryLength = 10 })

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode string
	}{
		{name: "malformed body", path: "/api/query", body: `{"query":`, wantCode: codeInvalidRequest},
		{name: "empty query", path: "/api/query", body: `{"query":"   "}`, wantCode: codeInvalidRequest},
		{name: "missing query", path: "/api/query", body: `{}`, wantCode: codeInvalidRequest},
		{name: "not a string", path: "/api/query", body: `{"query":7}`, wantCode: codeInvalidRequest},
		{name: "control character", path: "/api/query", body: `{"query":"cpu\u0000"}`, wantCode: codeInvalidRequest},
		{name: "too long", path: "/api/query", body: `{"query":"cpu usage of everything"}`, wantCode: codeQueryTooLong},
		{name: "stream empty query", path: "/api/query/stream", body: `{"query":""}`, wantCode: codeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+tt.path, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			var body errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
	if called {
		t.Error("runner called for a bad request")
	}
}

func TestQuery_RunnerError(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(context.Context, string, ...application.RunOption) (agent.FinalResult, error) {
		return agent.FinalResult{}, agent.ErrInvariant
	})
	srv := newTestServer(t, runner, nil)

	resp := post(t, srv.URL+"/api/query", `{"query":"cpu"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestQueryStream(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t)
	srv := newTestServer(t, o, nil)

	resp := post(t, srv.URL+"/api/query/stream", `{"query":"memory of my jobs"}`)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var events []string
	var final agent.FinalResult
	var turns []agent.Turn
	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
			events = append(events, event)
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			switch event {
			case eventTurn:
				var turn agent.Turn
				if err := json.Unmarshal(data, &turn); err != nil {
					t.Fatalf("turn event: %v", err)
				}
				turns = append(turns, turn)
			case eventFinal:
				if err := json.Unmarshal(data, &final); err != nil {
					t.Fatalf("final event: %v", err)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}

	if len(events) == 0 || events[len(events)-1] != eventFinal {
		t.Fatalf("events = %v, want final last", events)
	}
	if final.Status != agent.StatusCompleted {
		t.Errorf("final status = %q", final.Status)
	}
	// query, classification, assistant, summary
	if len(turns) != 4 || turns[0].Kind != agent.TurnQuery || turns[3].Kind != agent.TurnSummary {
		t.Errorf("turns = %+v", turns)
	}
}

func TestTools(t *testing.T) {
	t.Parallel()

	o, registry := newTestOrchestrator(t)
	srv := newTestServer(t, o, func(c *Config) { c.Registry = registry })

	resp, err := http.Get(srv.URL + "/api/tools")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var tools []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&tools); err != nil {
		t.Fatal(err)
	}
	if len(tools) != registry.Len() {
		t.Fatalf("got %d tools, want %d", len(tools), registry.Len())
	}
	if tools[0]["name"] != registry.Names()[0] {
		t.Errorf("first tool = %v", tools[0]["name"])
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("opsquery_runs_total 0\n"))
	})

	withMetrics := newTestServer(t, o, func(c *Config) { c.Metrics = metrics })
	resp, err := http.Get(withMetrics.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", resp.StatusCode)
	}

	without := newTestServer(t, o, nil)
	resp, err = http.Get(without.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /metrics without handler = %d, want 404", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(_ context.Context, q string, _ ...application.RunOption) (agent.FinalResult, error) {
		return agent.FinalResult{Query: q, Status: agent.StatusCompleted}, nil
	})
	srv := newTestServer(t, runner, func(c *Config) {
		c.RateLimit = RateLimitConfig{Rate: 1, Burst: 1}
	})

	first := post(t, srv.URL+"/api/query", `{"query":"cpu"}`)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d", first.StatusCode)
	}
	second := post(t, srv.URL+"/api/query", `{"query":"cpu"}`)
	if second.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", second.StatusCode)
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("health rate limited: %d", health.StatusCode)
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(context.Context, string, ...application.RunOption) (agent.FinalResult, error) {
		panic("boom")
	})
	srv := newTestServer(t, runner, nil)

	resp := post(t, srv.URL+"/api/query", `{"query":"cpu"}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestClientKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		remote string
		fwd    string
		want   string
	}{
		{name: "remote addr", remote: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "forwarded", remote: "10.0.0.1:5555", fwd: "203.0.113.7, 10.0.0.2", want: "203.0.113.7"},
		{name: "no port", remote: "pipe", want: "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.fwd != "" {
				r.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if got := clientKey(r); got != tt.want {
				t.Errorf("clientKey() = %q, want %q", got, tt.want)
			}
		})
	}
}
