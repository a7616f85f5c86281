package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS stats_rule_set (
    set_name      TEXT PRIMARY KEY,
    total_renders INTEGER NOT NULL DEFAULT 0,
    cache_hits    INTEGER NOT NULL DEFAULT 0,
    errors        INTEGER NOT NULL DEFAULT 0,
    bytes_in      INTEGER NOT NULL DEFAULT 0,
    bytes_out     INTEGER NOT NULL DEFAULT 0,
    first_seen    INTEGER NOT NULL,
    last_seen     INTEGER NOT NULL
);
`

// RuleSetStats holds the persisted render counters of one rule set.
type RuleSetStats struct {
	RuleSet      string    `json:"rule_set"`
	TotalRenders int64     `json:"total_renders"`
	CacheHits    int64     `json:"cache_hits"`
	Errors       int64     `json:"errors"`
	BytesIn      int64     `json:"bytes_in"`
	BytesOut     int64     `json:"bytes_out"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// GlobalStatsSummary provides a high-level overview of all collected stats.
type GlobalStatsSummary struct {
	TotalRenders int64 `json:"total_renders"`
	CacheHits    int64 `json:"cache_hits"`
	Errors       int64 `json:"errors"`
	BytesIn      int64 `json:"bytes_in"`
	BytesOut     int64 `json:"bytes_out"`
	RuleSetsUsed int64 `json:"rule_sets_used"`
}

// StatsAPI records render counters and serves them.
type StatsAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupStatsSchema(db *sql.DB) error {
	_, err := db.Exec(statsSchema)
	return err
}

func NewStatsAPI(db *sql.DB, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		db:     db,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/rulesets", s.handleRuleSets)
}

// RecordRender adds one render to the counters of ruleSet.
func (s *StatsAPI) RecordRender(ctx context.Context, ruleSet string, bytesIn, bytesOut int, cached, failed bool) error {
	hit, errs := 0, 0
	if cached {
		hit = 1
	}
	if failed {
		errs = 1
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO stats_rule_set (set_name, total_renders, cache_hits, errors, bytes_in, bytes_out, first_seen, last_seen)
        VALUES (?, 1, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(set_name) DO UPDATE SET
            total_renders = total_renders + 1,
            cache_hits = cache_hits + excluded.cache_hits,
            errors = errors + excluded.errors,
            bytes_in = bytes_in + excluded.bytes_in,
            bytes_out = bytes_out + excluded.bytes_out,
            last_seen = excluded.last_seen
    `, ruleSet, hit, errs, bytesIn, bytesOut, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert stats_rule_set: %w", err)
	}
	return nil
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "stats:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'stats:read' scope")
		return
	}
	var summary GlobalStatsSummary
	err := s.db.QueryRowContext(r.Context(), `
        SELECT COALESCE(SUM(total_renders), 0), COALESCE(SUM(cache_hits), 0), COALESCE(SUM(errors), 0),
               COALESCE(SUM(bytes_in), 0), COALESCE(SUM(bytes_out), 0), COUNT(*)
        FROM stats_rule_set`).Scan(&summary.TotalRenders, &summary.CacheHits, &summary.Errors,
		&summary.BytesIn, &summary.BytesOut, &summary.RuleSetsUsed)
	if err != nil {
		s.logger.Error("Failed to query stats summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleRuleSets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "stats:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'stats:read' scope")
		return
	}
	rows, err := s.db.QueryContext(r.Context(), `
        SELECT set_name, total_renders, cache_hits, errors, bytes_in, bytes_out, first_seen, last_seen
        FROM stats_rule_set ORDER BY total_renders DESC LIMIT 100`)
	if err != nil {
		s.logger.Error("Failed to query rule set stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	results := make([]RuleSetStats, 0)
	for rows.Next() {
		var st RuleSetStats
		var first, last int64
		if err = rows.Scan(&st.RuleSet, &st.TotalRenders, &st.CacheHits, &st.Errors, &st.BytesIn, &st.BytesOut, &first, &last); err != nil {
			s.logger.Error("Failed to scan rule set stats", "error", err)
			continue
		}
		st.FirstSeen = time.Unix(first, 0).UTC()
		st.LastSeen = time.Unix(last, 0).UTC()
		results = append(results, st)
	}
	respondWithJSON(w, http.StatusOK, results)
}
