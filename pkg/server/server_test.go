package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sandrolain/gondola/pkg/cache"
	"github.com/sandrolain/gondola/pkg/ext"
	"github.com/sandrolain/gondola/pkg/quote"
	"github.com/sandrolain/gondola/pkg/scan"
	"github.com/sandrolain/gondola/pkg/server"
)

func testSource(t *testing.T) *quote.Memory {
	t.Helper()
	day := func(d int) time.Time { return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC) }
	src := quote.NewMemory()
	err := src.Set("ACME", []quote.Bar{
		{Date: day(2), Open: 9.5, High: 10.2, Low: 9.4, Close: 10, Volume: 1000},
		{Date: day(3), Open: 10.5, High: 11.2, Low: 10.1, Close: 11, Volume: 1500},
		{Date: day(4), Open: 11, High: 11.1, Low: 10.2, Close: 10.5, Volume: 900},
		{Date: day(5), Open: 11, High: 12.3, Low: 10.9, Close: 12, Volume: 2100},
		{Date: day(8), Open: 12.5, High: 13.4, Low: 12.2, Close: 13, Volume: 2500},
	})
	if err != nil {
		t.Fatalf("Set error: %v", err)
	}
	return src
}

func newServer(t *testing.T) *server.Server {
	t.Helper()
	reg, err := ext.Registry()
	if err != nil {
		t.Fatalf("Registry error: %v", err)
	}
	return server.New(testSource(t),
		server.WithCache(cache.New(16)),
		server.WithRegistry(reg),
	)
}

func do(t *testing.T, s *server.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("invalid response body %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	w := do(t, newServer(t), http.MethodGet, "/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "ok" || body["symbols"] != float64(1) {
		t.Errorf("unexpected body %v", body)
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		wantType string
		wantCode string
	}{
		{"boolean", `{"formula": "close > open"}`, http.StatusOK, "boolean", ""},
		{"integer", `{"formula": "2 + 3"}`, http.StatusOK, "integer", ""},
		{"variables", `{"formula": "close * k", "variables": [{"name": "k", "type": "float", "value": 2}]}`, http.StatusOK, "float", ""},
		{"extension", `{"formula": "round(close)"}`, http.StatusOK, "integer", ""},
		{"syntax", `{"formula": "close +"}`, http.StatusBadRequest, "", "G0104"},
		{"unknown name", `{"formula": "foo > 1"}`, http.StatusBadRequest, "", "G0107"},
		{"type mismatch", `{"formula": "close and true"}`, http.StatusBadRequest, "", "G0201"},
		{"string root", `{"formula": "\"abc\""}`, http.StatusBadRequest, "", "G0204"},
		{"bad variable type", `{"formula": "1", "variables": [{"name": "k", "type": "text"}]}`, http.StatusBadRequest, "", ""},
		{"missing formula", `{}`, http.StatusBadRequest, "", ""},
		{"malformed json", `{"formula":`, http.StatusBadRequest, "", ""},
	}

	s := newServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/check", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			if tt.status == http.StatusOK {
				resp := decode[server.CheckResponse](t, w)
				if resp.Type != tt.wantType {
					t.Errorf("type = %q, want %q", resp.Type, tt.wantType)
				}
				return
			}
			resp := decode[server.ErrorResponse](t, w)
			if resp.Error == "" {
				t.Error("empty error message")
			}
			if tt.wantCode != "" && resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestCheckSimplified(t *testing.T) {
	w := do(t, newServer(t), http.MethodPost, "/v1/check", `{"formula": "true and false"}`)
	resp := decode[server.CheckResponse](t, w)
	if resp.Type != "boolean" || resp.Simplified != "false" {
		t.Errorf("got %+v", resp)
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		day   int
		value float64
	}{
		{"last day by default", `{"formula": "close", "symbol": "ACME"}`, 4, 13},
		{"explicit day", `{"formula": "close(0) > close(-1)", "symbol": "ACME", "day": 1}`, 1, 1},
		{"negative day", `{"formula": "open", "symbol": "ACME", "day": -2}`, 3, 11},
		{"by date", `{"formula": "volume", "symbol": "ACME", "date": "2024-01-04"}`, 2, 900},
		{"variables", `{"formula": "close * k", "symbol": "ACME", "day": 0, "variables": [{"name": "k", "type": "int", "value": 3}]}`, 0, 30},
	}

	s := newServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/eval", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			resp := decode[server.EvalResponse](t, w)
			if resp.Day != tt.day || resp.Value != tt.value {
				t.Errorf("day %d value %v, want day %d value %v", resp.Day, resp.Value, tt.day, tt.value)
			}
		})
	}
}

func TestEvalAssignedVariables(t *testing.T) {
	body := `{"formula": "n = n + 1; n", "symbol": "ACME", "variables": [{"name": "n", "type": "int"}]}`
	w := do(t, newServer(t), http.MethodPost, "/v1/eval", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[server.EvalResponse](t, w)
	if resp.Value != 1 || resp.Variables["n"] != 1 {
		t.Errorf("got %+v", resp)
	}
}

func TestEvalFailures(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"before first day", `{"formula": "close(-1)", "symbol": "ACME", "day": 0}`, http.StatusUnprocessableEntity, "G0302"},
		{"division by zero", `{"formula": "close / (volume - volume)", "symbol": "ACME"}`, http.StatusUnprocessableEntity, "G0301"},
		{"unknown symbol", `{"formula": "close", "symbol": "NOPE"}`, http.StatusUnprocessableEntity, "G0303"},
		{"not a trading day", `{"formula": "close", "symbol": "ACME", "date": "2024-01-06"}`, http.StatusUnprocessableEntity, "G0302"},
		{"bad date", `{"formula": "close", "symbol": "ACME", "date": "Jan 4"}`, http.StatusBadRequest, ""},
		{"missing symbol", `{"formula": "close"}`, http.StatusBadRequest, ""},
	}

	s := newServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/eval", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			resp := decode[server.ErrorResponse](t, w)
			if tt.code != "" && resp.Code != tt.code {
				t.Errorf("code = %q, want %q", resp.Code, tt.code)
			}
		})
	}
}

func TestScan(t *testing.T) {
	body := `{"formula": "close > close(-1)", "matches_only": true}`
	w := do(t, newServer(t), http.MethodPost, "/v1/scan", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	res := decode[scan.Result](t, w)
	if res.Symbols != 1 || res.Skipped != 1 {
		t.Errorf("symbols %d skipped %d, want 1 and 1", res.Symbols, res.Skipped)
	}
	want := []int{1, 3, 4}
	if len(res.Points) != len(want) {
		t.Fatalf("got %d points, want %d: %+v", len(res.Points), len(want), res.Points)
	}
	for i, p := range res.Points {
		if p.Day != want[i] {
			t.Errorf("point %d day = %d, want %d", i, p.Day, want[i])
		}
	}
	if res.Points[2].Date != "2024-01-08" {
		t.Errorf("date = %q, want 2024-01-08", res.Points[2].Date)
	}
}

func TestScanLast(t *testing.T) {
	w := do(t, newServer(t), http.MethodPost, "/v1/scan", `{"formula": "close", "symbols": ["ACME"], "last": 2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	res := decode[scan.Result](t, w)
	if len(res.Points) != 2 || res.Points[0].Value != 12 || res.Points[1].Value != 13 {
		t.Errorf("unexpected points %+v", res.Points)
	}
}

func TestNotFound(t *testing.T) {
	w := do(t, newServer(t), http.MethodGet, "/v1/nothing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
