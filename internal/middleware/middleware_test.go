package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/service"
)

type stubValidator map[string]*service.Claims

func (v stubValidator) ValidateToken(tokenStr string) (*service.Claims, error) {
	if tokenStr == "expired" {
		return nil, jwt.ErrTokenExpired
	}
	c, ok := v[tokenStr]
	if !ok {
		return nil, errors.New("bad token")
	}
	return c, nil
}

type stubSessions struct{ live map[int]string }

func (s stubSessions) ValidateSession(_ context.Context, userID int, jti string) error {
	if s.live[userID] != jti {
		return service.ErrSessionInvalidated
	}
	return nil
}

func claimsFor(id int, role model.Role, jti string) *service.Claims {
	c := &service.Claims{UserID: id, Role: role}
	c.ID = jti
	return c
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/x", handlers...)
	return r
}

func do(r http.Handler, header, query string) int {
	req := httptest.NewRequest(http.MethodGet, "/x"+query, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAuthChain(t *testing.T) {
	tokens := stubValidator{
		"student": claimsFor(1, model.RoleStudent, "s-1"),
		"teacher": claimsFor(2, model.RoleTeacher, "t-1"),
		"stale":   claimsFor(3, model.RoleTeacher, "old"),
	}
	sessions := stubSessions{live: map[int]string{1: "s-1", 2: "t-1", 3: "new"}}
	chain := []gin.HandlerFunc{RequireJWT(tokens), CheckSingleSession(sessions, zerolog.Nop())}

	tests := []struct {
		name   string
		role   gin.HandlerFunc
		header string
		query  string
		want   int
	}{
		{"missing token", RequireStaff(), "", "", http.StatusUnauthorized},
		{"unknown token", RequireStaff(), "Bearer nope", "", http.StatusUnauthorized},
		{"expired token", RequireStaff(), "Bearer expired", "", http.StatusUnauthorized},
		{"superseded session", RequireStaff(), "Bearer stale", "", http.StatusUnauthorized},
		{"teacher on staff route", RequireStaff(), "Bearer teacher", "", http.StatusNoContent},
		{"student on staff route", RequireStaff(), "Bearer student", "", http.StatusForbidden},
		{"teacher on student route", RequireStudent(), "Bearer teacher", "", http.StatusForbidden},
		{"student token in query", RequireStudent(), "", "?token=student", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(append(append([]gin.HandlerFunc{}, chain...), tt.role)...)
			if got := do(r, tt.header, tt.query); got != tt.want {
				t.Fatalf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRequireMonitorToken(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		sent   string
		want   int
	}{
		{"open when unset", "", "", http.StatusNoContent},
		{"matching token", "s3cret", "s3cret", http.StatusNoContent},
		{"wrong token", "s3cret", "guess", http.StatusUnauthorized},
		{"missing token", "s3cret", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(RequireMonitorToken(tt.secret))
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.sent != "" {
				req.Header.Set(MonitorTokenHeader, tt.sent)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

type memCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (m *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func TestRateLimiter(t *testing.T) {
	counter := &memCounter{counts: map[string]int64{}}
	rl := NewRateLimiter(counter, "test", 2, time.Minute, zerolog.Nop())
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	r := newEngine(rl.Middleware())

	for i, want := range []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests} {
		if got := do(r, "", ""); got != want {
			t.Fatalf("request %d: status = %d, want %d", i+1, got, want)
		}
	}

	now = now.Add(time.Minute)
	if got := do(r, "", ""); got != http.StatusNoContent {
		t.Fatalf("next window: status = %d, want %d", got, http.StatusNoContent)
	}

	counter.err = errors.New("redis down")
	if got := do(r, "", ""); got != http.StatusNoContent {
		t.Fatalf("counter failure: status = %d, want request to pass", got)
	}
}
