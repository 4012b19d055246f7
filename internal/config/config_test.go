package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Attempt.DuplicatePolicy != DuplicateResume {
		t.Errorf("DuplicatePolicy = %q, want resume", cfg.Attempt.DuplicatePolicy)
	}
	if !cfg.Attempt.GradeOnSubmit {
		t.Error("GradeOnSubmit should default to true")
	}
	if cfg.Attempt.ScoringPolicy != ScoringPoints {
		t.Errorf("ScoringPolicy = %q, want points", cfg.Attempt.ScoringPolicy)
	}
	if cfg.Attempt.RequireEnrollment {
		t.Error("RequireEnrollment should default to false")
	}
	if cfg.Attempt.MaxAttempts != 0 {
		t.Errorf("MaxAttempts = %d, want 0 (unlimited)", cfg.Attempt.MaxAttempts)
	}
	if cfg.Proctor.MaxViolations != 3 {
		t.Errorf("MaxViolations = %d, want 3", cfg.Proctor.MaxViolations)
	}
	if cfg.JWTExpiry != 24*time.Hour {
		t.Errorf("JWTExpiry = %v, want 24h", cfg.JWTExpiry)
	}
	if cfg.AllowedOrigins != nil {
		t.Errorf("AllowedOrigins = %v, want nil", cfg.AllowedOrigins)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DUPLICATE_ATTEMPT_POLICY", "REJECT")
	t.Setenv("GRADE_ON_SUBMIT", "false")
	t.Setenv("SCORING_POLICY", "normalized")
	t.Setenv("TIME_LIMIT_GRACE", "45s")
	t.Setenv("MAX_VIOLATIONS", "0")
	t.Setenv("MAX_ATTEMPTS", "1")
	t.Setenv("CRITICAL_VIOLATIONS", "devtools_open, second_screen ,")
	t.Setenv("CORS_ORIGINS", "https://exam.example.com")
	t.Setenv("JWT_EXPIRY_HOURS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Attempt.DuplicatePolicy != DuplicateReject {
		t.Errorf("DuplicatePolicy = %q", cfg.Attempt.DuplicatePolicy)
	}
	if cfg.Attempt.GradeOnSubmit {
		t.Error("GradeOnSubmit = true, want false")
	}
	if cfg.Attempt.ScoringPolicy != ScoringNormalized {
		t.Errorf("ScoringPolicy = %q", cfg.Attempt.ScoringPolicy)
	}
	if cfg.Attempt.TimeLimitGrace != 45*time.Second {
		t.Errorf("TimeLimitGrace = %v", cfg.Attempt.TimeLimitGrace)
	}
	if cfg.Attempt.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d", cfg.Attempt.MaxAttempts)
	}
	if cfg.Proctor.MaxViolations != 0 {
		t.Errorf("MaxViolations = %d", cfg.Proctor.MaxViolations)
	}
	if want := []string{"devtools_open", "second_screen"}; !reflect.DeepEqual(cfg.Proctor.CriticalViolations, want) {
		t.Errorf("CriticalViolations = %v, want %v", cfg.Proctor.CriticalViolations, want)
	}
	if want := []string{"https://exam.example.com"}; !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.JWTExpiry != 2*time.Hour {
		t.Errorf("JWTExpiry = %v", cfg.JWTExpiry)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"duplicate policy", "DUPLICATE_ATTEMPT_POLICY", "ignore"},
		{"scoring policy", "SCORING_POLICY", "curve"},
		{"negative max violations", "MAX_VIOLATIONS", "-1"},
		{"negative max attempts", "MAX_ATTEMPTS", "-2"},
		{"negative grace", "TIME_LIMIT_GRACE", "-5s"},
		{"pool bounds", "DB_MIN_CONNS", "64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s succeeded, want error", tt.key, tt.value)
			}
		})
	}
}

func TestCacheKeys(t *testing.T) {
	if got := CacheKey.UserSessionKey(42); got == CacheKey.UserSessionKey(43) {
		t.Errorf("session keys collide: %q", got)
	}
	a := CacheKey.RateLimitKey("login", "10.0.0.1", 100)
	b := CacheKey.RateLimitKey("monitor", "10.0.0.1", 100)
	if a == b {
		t.Errorf("rate-limit buckets share key %q", a)
	}
}
