package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"progportal/internal/docstore"

	"golang.org/x/crypto/bcrypt"
)

func testConfig() Config {
	return Config{
		AllowedOrigins:         []string{"http://localhost:5173"},
		RequestBodyLimitMB:     6,
		ViewRateLimitPerMinute: 30,
	}
}

func TestRouterPublicRoutes(t *testing.T) {
	router := NewRouter(testConfig(), Deps{Store: docstore.NewMemory()})

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{name: "root", method: http.MethodGet, target: "/", wantStatus: http.StatusOK},
		{name: "healthz", method: http.MethodGet, target: "/healthz", wantStatus: http.StatusOK},
		{name: "health", method: http.MethodGet, target: "/api/health", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, target: "/metrics", wantStatus: http.StatusOK},
		{name: "questions", method: http.MethodGet, target: "/api/questions", wantStatus: http.StatusOK},
		{name: "languages", method: http.MethodGet, target: "/api/questions/languages", wantStatus: http.StatusOK},
		{name: "bad level", method: http.MethodGet, target: "/api/questions/level/7", wantStatus: http.StatusBadRequest},
		{name: "missing question", method: http.MethodGet, target: "/api/questions/nope", wantStatus: http.StatusNotFound},
		{name: "views", method: http.MethodGet, target: "/api/stats/views", wantStatus: http.StatusOK},
		{name: "upload disabled", method: http.MethodPost, target: "/api/upload", wantStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.target, nil))
			if w.Code != tc.wantStatus {
				t.Fatalf("%s %s: got status %d, want %d", tc.method, tc.target, w.Code, tc.wantStatus)
			}
		})
	}
}

func TestRouterHealthReportsStore(t *testing.T) {
	router := NewRouter(testConfig(), Deps{Store: docstore.NewMemory()})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var body healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.DBState != "connected" || body.Driver != docstore.DriverMemory {
		t.Fatalf("unexpected health: %+v", body)
	}
}

func TestRouterQuestionFlow(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	cfg := testConfig()
	cfg.AdminTokenHash = string(hash)
	router := NewRouter(cfg, Deps{Store: docstore.NewMemory()})

	payload := `{"level":2,"title":"Fizz","statement":"s","imageUrl":"a.jpg","answers":[{"language":"Go","code":"x","explanation":"y"}]}`

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/questions", bytes.NewBufferString(payload)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/questions", bytes.NewBufferString(payload))
	req.Header.Set("Authorization", "Bearer admin")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, _ := created["_id"].(string)
	urls, _ := created["imageUrls"].([]any)
	if id == "" || len(urls) != 1 || urls[0] != "a.jpg" {
		t.Fatalf("unexpected created body: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/questions/level/2?language=go", nil))
	var listed []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil || len(listed) != 1 {
		t.Fatalf("expected one listed question, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/questions/"+id+"/views", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("anonymous view should be allowed, got %d", w.Code)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := NewRouter(testConfig(), Deps{Store: docstore.NewMemory()})

	req := httptest.NewRequest(http.MethodOptions, "/api/questions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allowed origin not echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/questions", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unknown origin must not be allowed, got %q", got)
	}
}

func TestRouterRateLimitsSiteViews(t *testing.T) {
	cfg := testConfig()
	cfg.ViewRateLimitPerMinute = 2
	router := NewRouter(cfg, Deps{Store: docstore.NewMemory()})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/stats/views", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}
