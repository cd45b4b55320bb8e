package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const checkTimeout = 2 * time.Second

// HealthCheck is the /readyz response body.
type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// CheckResult is the outcome of a single readiness check.
type CheckResult struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// RowQuerier is satisfied by *pgxpool.Pool.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthChecker reports database, migration and job queue readiness.
type HealthChecker struct {
	db        RowQuerier
	version   string
	gitCommit string
	now       func() time.Time
}

func NewHealthChecker(db RowQuerier, version, gitCommit string) *HealthChecker {
	return &HealthChecker{db: db, version: version, gitCommit: gitCommit, now: time.Now}
}

// Ready handles GET /readyz.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			respondHealth(w, http.StatusServiceUnavailable, "shutting_down")
			return
		default:
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]CheckResult{
			"database":   h.checkDatabase(ctx),
			"migrations": h.checkMigrations(ctx),
			"job_queue":  h.checkJobQueue(ctx),
		}

		overall := "healthy"
		status := http.StatusOK
		for _, check := range checks {
			if check.Status == "fail" {
				overall = "unhealthy"
				status = http.StatusServiceUnavailable
				break
			}
			if check.Status == "warn" {
				overall = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(HealthCheck{
			Status:    overall,
			Version:   h.version,
			GitCommit: h.gitCommit,
			Checks:    checks,
			Timestamp: h.now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *HealthChecker) checkDatabase(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: "fail", Message: "Database pool not initialized"}
	}
	start := time.Now()
	dbCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var one int
	err := h.db.QueryRow(dbCtx, "SELECT 1").Scan(&one)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Database query failed"
		switch {
		case dbCtx.Err() == context.DeadlineExceeded:
			message = "Database query timed out"
		case strings.Contains(err.Error(), "connection refused"):
			message = "Database connection refused"
		case strings.Contains(err.Error(), "authentication failed"):
			message = "Database authentication failed"
		}
		return CheckResult{Status: "fail", Message: message, LatencyMs: latency, Details: map[string]any{"error": err.Error()}}
	}
	return CheckResult{Status: "pass", Message: "PostgreSQL connection successful", LatencyMs: latency}
}

func (h *HealthChecker) checkMigrations(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: "fail", Message: "Database pool not initialized"}
	}
	start := time.Now()
	migCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var version int64
	var dirty bool
	err := h.db.QueryRow(migCtx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		message := "Failed to query migration version"
		if strings.Contains(err.Error(), "does not exist") || errors.Is(err, pgx.ErrNoRows) {
			message = "Migrations not applied"
		}
		return CheckResult{Status: "fail", Message: message, LatencyMs: latency, Details: map[string]any{"error": err.Error()}}
	}
	if dirty {
		return CheckResult{
			Status:    "fail",
			Message:   "Database in dirty migration state",
			LatencyMs: latency,
			Details:   map[string]any{"version": version, "dirty": true},
		}
	}
	return CheckResult{
		Status:    "pass",
		Message:   fmt.Sprintf("Migrations applied (version %d)", version),
		LatencyMs: latency,
		Details:   map[string]any{"version": version},
	}
}

// checkJobQueue reports missing River tables as a warning.
func (h *HealthChecker) checkJobQueue(ctx context.Context) CheckResult {
	if h.db == nil {
		return CheckResult{Status: "fail", Message: "Database pool not initialized"}
	}
	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var exists bool
	if err := h.db.QueryRow(jobCtx, `SELECT to_regclass('river_job') IS NOT NULL`).Scan(&exists); err != nil {
		return CheckResult{Status: "fail", Message: "Failed to check job queue", LatencyMs: time.Since(start).Milliseconds(), Details: map[string]any{"error": err.Error()}}
	}
	if !exists {
		return CheckResult{Status: "warn", Message: "River job queue table not found", LatencyMs: time.Since(start).Milliseconds()}
	}

	var pending int64
	err := h.db.QueryRow(jobCtx, `SELECT COUNT(*) FROM river_job WHERE state = ANY($1)`, []string{"available", "retryable"}).Scan(&pending)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return CheckResult{Status: "fail", Message: "Failed to query job queue", LatencyMs: latency, Details: map[string]any{"error": err.Error()}}
	}
	return CheckResult{Status: "pass", Message: "River job queue operational", LatencyMs: latency, Details: map[string]any{"pending_jobs": pending}}
}

// Healthz is the liveness probe.
func Healthz() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondHealth(w, http.StatusOK, "ok")
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

func respondHealth(w http.ResponseWriter, status int, value string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: value})
}
