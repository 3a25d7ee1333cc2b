package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// stubScripter считает вызовы скрипта по ключу, как это делал бы Redis.
type stubScripter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newStubScripter() *stubScripter {
	return &stubScripter{counts: make(map[string]int64)}
}

func (s *stubScripter) run(ctx context.Context, keys []string) *redis.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := redis.NewCmd(ctx)
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	s.counts[keys[0]]++
	cmd.SetVal(s.counts[keys[0]])
	return cmd
}

func (s *stubScripter) Eval(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(ctx, keys)
}

func (s *stubScripter) EvalSha(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(ctx, keys)
}

func (s *stubScripter) EvalRO(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(ctx, keys)
}

func (s *stubScripter) EvalShaRO(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(ctx, keys)
}

func (s *stubScripter) ScriptExists(ctx context.Context, _ ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal([]bool{true})
	return cmd
}

func (s *stubScripter) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("sha")
	return cmd
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusCreated)
}

func post(h http.Handler, remoteAddr, forwarded string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/appointments", nil)
	req.RemoteAddr = remoteAddr
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_Limit(t *testing.T) {
	rl := NewRateLimiter(newStubScripter(), 2, time.Minute, "booking", zap.NewNop())
	h := rl.Middleware(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1:5000", ""))
	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1:5001", ""))
	assert.Equal(t, http.StatusTooManyRequests, post(h, "10.0.0.1:5002", ""))

	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.2:5000", ""))
	assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1:5000", "192.168.1.9, 10.0.0.1"))
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	s := newStubScripter()
	s.err = errors.New("connection refused")

	rl := NewRateLimiter(s, 1, time.Minute, "", zap.NewNop())
	h := rl.Middleware(http.HandlerFunc(okHandler))

	for range 3 {
		assert.Equal(t, http.StatusCreated, post(h, "10.0.0.1:5000", ""))
	}
}
