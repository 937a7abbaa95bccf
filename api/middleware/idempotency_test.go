package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		matched bool
	}{
		{"create interview", http.MethodPost, "/api/v1/interviews", defaultIdempotencyTTL, true},
		{"end interview", http.MethodPost, "/api/v1/interviews/{interviewID}/end", criticalIdempotencyTTL, true},
		{"assign plan", http.MethodPost, "/api/v1/admin/orgs/{orgID}/plan", defaultIdempotencyTTL, true},
		{"list interviews", http.MethodGet, "/api/v1/interviews", 0, false},
		{"join link", http.MethodPost, "/api/v1/interviews/{interviewID}/join", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ttl, ok := routeTTL(tc.method, tc.pattern)
			if ok != tc.matched {
				t.Fatalf("matched=%v want %v", ok, tc.matched)
			}
			if ok && ttl != tc.want {
				t.Fatalf("ttl=%v want %v", ttl, tc.want)
			}
		})
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"n":` + fmt.Sprint(calls) + `}}`))
	}))

	body := `{"duration_sec":1800}`
	send := func() *httptest.ResponseRecorder {
		req := requestWithPattern(http.MethodPost, "/api/v1/interviews", "/api/v1/interviews", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "key-1")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp
	}

	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("first call status %d", first.Code)
	}
	second := send()
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status %d", second.Code)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replayed body differs: %q vs %q", first.Body.String(), second.Body.String())
	}
}

func TestIdempotencyRejectsReusedKeyWithDifferentBody(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(body string) *httptest.ResponseRecorder {
		req := requestWithPattern(http.MethodPost, "/api/v1/interviews", "/api/v1/interviews", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "key-1")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp
	}

	if resp := send(`{"duration_sec":1800}`); resp.Code != http.StatusCreated {
		t.Fatalf("first call status %d", resp.Code)
	}
	if resp := send(`{"duration_sec":3600}`); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused key, got %d", resp.Code)
	}
}

func TestIdempotencySkipsWithoutKeyOrRule(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	// Matching route, no key: passes through every time.
	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/interviews", "/api/v1/interviews", strings.NewReader("{}"))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
	}
	// Unmatched route with a key: also passes through.
	req := requestWithPattern(http.MethodGet, "/api/v1/interviews", "/api/v1/interviews", nil)
	req.Header.Set("Idempotency-Key", "key-1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if calls != 3 {
		t.Fatalf("handler ran %d times, want 3", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored, got %d records", len(store.data))
	}
}
