package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/CTAG07/bbmark/pkg/rendercache"
	"github.com/CTAG07/bbmark/pkg/rulestore"
	"github.com/google/uuid"
)

const contextKeyRequestID = contextKey("request_id")

// Server wires the rule store, the renderer and the API handlers together.
type Server struct {
	cm         *ConfigManager
	db         *sql.DB
	logger     *slog.Logger
	store      *rulestore.Store
	cache      rendercache.Cache
	metrics    *Metrics
	renderer   *Renderer
	authAPI    *AuthAPI
	renderAPI  *RenderAPI
	ruleSetAPI *RuleSetAPI
	statsAPI   *StatsAPI
	serverAPI  *ServerAPI
	apiMux     *http.ServeMux
}

// NewServer builds the server for one run cycle. The schemas must already
// exist in db.
func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, cache rendercache.Cache, actionChan chan string) (*Server, error) {
	config := cm.Get()

	store, err := rulestore.NewStore(db, logger.With("component", "rulestore"))
	if err != nil {
		return nil, fmt.Errorf("error creating rule store: %w", err)
	}

	var metrics *Metrics
	if config.Server.MetricsEnabled {
		metrics = NewMetrics()
	}

	statsAPI := NewStatsAPI(db, logger)
	renderer := NewRenderer(store, cache, metrics, statsAPI, logger)
	cm.SetRenderer(renderer)

	server := &Server{
		cm:         cm,
		db:         db,
		logger:     logger,
		store:      store,
		cache:      cache,
		metrics:    metrics,
		renderer:   renderer,
		authAPI:    NewAuthAPI(db, logger),
		renderAPI:  NewRenderAPI(renderer, logger),
		ruleSetAPI: NewRuleSetAPI(store, renderer, metrics, logger),
		statsAPI:   statsAPI,
		serverAPI:  NewServerAPI(cm, actionChan, logger),
		apiMux:     http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.renderAPI.RegisterRoutes(apiMux)
	server.ruleSetAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Every api function must pass through authentication first...
	server.apiMux.Handle("/api/", server.authAPI.Authenticate(apiMux))
	// ...except for the health check, so something like docker can use it.
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	if metrics != nil {
		server.apiMux.Handle("/metrics", metrics.Handler())
	}

	return server, nil
}

// Handler returns the root handler with request IDs and access logging.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withAccessLog(s.apiMux))
}

// Close releases the store's prepared statements.
func (s *Server) Close() {
	s.store.Close()
}

// SeedRuleSets imports every rule file in dir. A set that already holds the
// same rules is left alone, so restarting does not bump revisions.
func (s *Server) SeedRuleSets(ctx context.Context, dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("Rules directory does not exist, nothing to seed", "dir", dir)
			return nil
		}
		return fmt.Errorf("failed to read rules directory: %w", err)
	}

	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml" && ext != ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err = s.seedRuleFile(ctx, path); err != nil {
			s.logger.Error("Failed to seed rule file", "path", path, "error", err)
			continue
		}
	}
	return nil
}

func (s *Server) seedRuleFile(ctx context.Context, path string) error {
	f, err := bbcode.LoadRuleFile(path)
	if err != nil {
		return err
	}
	want, err := f.Specs()
	if err != nil {
		return err
	}

	_, have, err := s.store.GetRuleSet(ctx, f.Name)
	switch {
	case err == nil && slices.Equal(have, want):
		s.logger.Debug("Rule set up to date", "rule_set", f.Name)
		return nil
	case err != nil && !errors.Is(err, rulestore.ErrRuleSetNotFound):
		return err
	}

	info, err := s.store.ImportRuleSet(ctx, f, true)
	if err != nil {
		return err
	}
	s.renderer.Invalidate(info.Name)
	s.logger.Info("Rule set seeded", "rule_set", info.Name, "revision", info.Revision, "rules", info.RuleCount)
	return nil
}

// withRequestID tags every request with an ID, taken from the X-Request-Id
// header when the client sends a valid UUID.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Request served",
			"request_id", requestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote_addr", getClientIP(r),
			"duration", time.Since(start),
		)
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

func getClientIP(r *http.Request) string {
	// Set by reverse proxies such as nginx.
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}
	// The first entry of X-Forwarded-For is the original client.
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}
