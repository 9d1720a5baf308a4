package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// scriptStub is an in-memory redis.Scripter that mimics the fixed-window
// counter script.
type scriptStub struct {
	mu     sync.Mutex
	counts map[string]int64
	fail   bool
}

func (s *scriptStub) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return redis.NewCmdResult(nil, errors.New("connection refused"))
	}
	if s.counts == nil {
		s.counts = make(map[string]int64)
	}
	s.counts[keys[0]]++
	return redis.NewCmdResult([]interface{}{s.counts[keys[0]], int64(1000)}, nil)
}

// noScriptError satisfies redis.Error so Script.Run recognizes the NOSCRIPT
// reply and falls back to Eval.
type noScriptError string

func (e noScriptError) Error() string { return string(e) }
func (e noScriptError) RedisError()   {}

func (s *scriptStub) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	// Force the script fallback path, like a server that never saw the
	// script before.
	return redis.NewCmdResult(nil, noScriptError("NOSCRIPT No matching script"))
}

func (s *scriptStub) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.Eval(ctx, script, keys, args...)
}

func (s *scriptStub) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.EvalSha(ctx, sha1, keys, args...)
}

func (s *scriptStub) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{false}, nil)
}

func (s *scriptStub) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func doLimited(limiter *RateLimiter, customerID string) *httptest.ResponseRecorder {
	handler := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/accounts", nil)
	req = req.WithContext(context.WithValue(req.Context(), CustomerIDKey, customerID))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	limiter := NewRateLimiter(&scriptStub{}, "test:rate_limit", 2, time.Minute)
	customerID := uuid.NewString()

	for i := 0; i < 2; i++ {
		if rec := doLimited(limiter, customerID); rec.Code != http.StatusOK {
			t.Fatalf("request %d within the limit got %d", i+1, rec.Code)
		}
	}

	rec := doLimited(limiter, customerID)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over the limit, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}

	// A different customer has its own window.
	if rec := doLimited(limiter, uuid.NewString()); rec.Code != http.StatusOK {
		t.Errorf("expected another customer to pass, got %d", rec.Code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := NewRateLimiter(&scriptStub{fail: true}, "test:rate_limit", 1, time.Minute)
	customerID := uuid.NewString()

	for i := 0; i < 3; i++ {
		if rec := doLimited(limiter, customerID); rec.Code != http.StatusOK {
			t.Fatalf("expected fail-open 200 when redis is down, got %d", rec.Code)
		}
	}
}

func TestRateLimitDisabledWithoutLimiter(t *testing.T) {
	if rec := doLimited(nil, uuid.NewString()); rec.Code != http.StatusOK {
		t.Fatalf("expected a nil limiter to pass everything, got %d", rec.Code)
	}
}
