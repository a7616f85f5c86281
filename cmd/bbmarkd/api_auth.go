package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

const authSchema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL,
    created_at    INTEGER   NOT NULL DEFAULT 0
);
`

const (
	// authHeader carries the raw API key.
	authHeader = "bbmark-auth"
	// apiKeyPrefix marks bbmark keys in logs and secret scanners.
	apiKeyPrefix = "bbm_"
	scopeMaster  = "*"
)

// knownScopes are the scopes a key can be granted. scopeMaster grants all of them.
var knownScopes = []string{
	scopeMaster,
	"render",
	"rules:read",
	"rules:write",
	"stats:read",
	"auth:manage",
	"server:config",
	"server:control",
}

var (
	errUnknownKey      = errors.New("unknown API key")
	errKeyNotFound     = errors.New("key not found")
	errLastMasterKey   = errors.New("cannot delete the last master key")
	errDeleteOwnKey    = errors.New("a key cannot delete itself")
	errUnknownScope    = errors.New("unknown scope")
	openAPIPermissions = Permissions{ScopeSet: map[string]struct{}{scopeMaster: {}}}
)

type contextKey string

const contextKeyPermissions = contextKey("permissions")

// Permissions holds the authentication info for a request.
type Permissions struct {
	KeyID    int // 0 when the API is open
	ScopeSet map[string]struct{}
}

// Scopes returns the granted scopes, sorted.
func (p *Permissions) Scopes() []string {
	return slices.Sorted(maps.Keys(p.ScopeSet))
}

func parseScopes(stored string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings.Fields(stored) {
		set[s] = struct{}{}
	}
	return set
}

// APIKeyInfo is the structure returned when listing keys.
type APIKeyInfo struct {
	ID          int       `json:"id"`
	Scopes      []string  `json:"scopes"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateKeyRequest is the expected JSON body for creating a new key.
type CreateKeyRequest struct {
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// CreateKeyResponse is the JSON response after creating a key. RawKey is only
// ever shown here.
type CreateKeyResponse struct {
	ID     int      `json:"id"`
	RawKey string   `json:"raw_key"`
	Scopes []string `json:"scopes"`
}

func setupAuthSchema(db *sql.DB) error {
	_, err := db.Exec(authSchema)
	return err
}

// keyStore is the api_keys table. Only SHA-256 hashes of keys are stored.
type keyStore struct {
	db *sql.DB
}

func (ks keyStore) count(ctx context.Context) (int, error) {
	var n int
	err := ks.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&n)
	return n, err
}

func (ks keyStore) lookup(ctx context.Context, rawKey string) (*Permissions, error) {
	var (
		id     int
		scopes string
	)
	err := ks.db.QueryRowContext(ctx, "SELECT id, scopes FROM api_keys WHERE key_hash = ?", hashAPIKey(rawKey)).Scan(&id, &scopes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errUnknownKey
	}
	if err != nil {
		return nil, err
	}
	return &Permissions{KeyID: id, ScopeSet: parseScopes(scopes)}, nil
}

// insert stores a new key. The first key ever stored is a master key whatever
// scopes were asked for, so the API cannot lock itself out.
func (ks keyStore) insert(ctx context.Context, rawKey, description string, scopes []string) (int, []string, error) {
	tx, err := ks.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&existing); err != nil {
		return 0, nil, err
	}
	if existing == 0 {
		scopes = []string{scopeMaster}
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO api_keys (key_hash, description, scopes, created_at) VALUES (?, ?, ?, ?)",
		hashAPIKey(rawKey), description, strings.Join(scopes, " "), time.Now().Unix())
	if err != nil {
		return 0, nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, nil, err
	}
	return int(id), scopes, tx.Commit()
}

func (ks keyStore) list(ctx context.Context) ([]APIKeyInfo, error) {
	rows, err := ks.db.QueryContext(ctx, "SELECT id, description, scopes, created_at FROM api_keys ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	keys := make([]APIKeyInfo, 0)
	for rows.Next() {
		var (
			key     APIKeyInfo
			scopes  string
			created int64
		)
		if err = rows.Scan(&key.ID, &key.Description, &scopes, &created); err != nil {
			return nil, err
		}
		key.Scopes = strings.Fields(scopes)
		key.CreatedAt = time.Unix(created, 0).UTC()
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// remove deletes key id on behalf of the key callerID. The last master key
// always survives.
func (ks keyStore) remove(ctx context.Context, id, callerID int) error {
	if id == callerID {
		return errDeleteOwnKey
	}
	tx, err := ks.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var scopes string
	err = tx.QueryRowContext(ctx, "SELECT scopes FROM api_keys WHERE id = ?", id).Scan(&scopes)
	if errors.Is(err, sql.ErrNoRows) {
		return errKeyNotFound
	}
	if err != nil {
		return err
	}
	if _, master := parseScopes(scopes)[scopeMaster]; master {
		var masters int
		if err = tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM api_keys WHERE ' ' || scopes || ' ' LIKE '% * %'").Scan(&masters); err != nil {
			return err
		}
		if masters <= 1 {
			return errLastMasterKey
		}
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// AuthAPI serves /api/auth and guards every other API route.
type AuthAPI struct {
	keys   keyStore
	logger *slog.Logger
}

func NewAuthAPI(db *sql.DB, logger *slog.Logger) *AuthAPI {
	return &AuthAPI{keys: keyStore{db: db}, logger: logger}
}

// RegisterRoutes sets up the routing for all /api/auth endpoints.
func (a *AuthAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/me", a.handleCheckMe)
	mux.HandleFunc("/api/auth/keys", a.handleKeys)
	mux.HandleFunc("/api/auth/keys/", a.handleKeyByID)
}

// Authenticate resolves the key in the auth header to its permissions. While
// no key exists the API is open and every request is a master request.
func (a *AuthAPI) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perms, err := a.permissions(r)
		switch {
		case errors.Is(err, errUnknownKey):
			a.logger.Debug("Rejected API request", "remote_addr", getClientIP(r), "reason", err)
			respondWithError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
			return
		case err != nil:
			a.logger.Error("Failed to authenticate request", "request_id", requestID(r.Context()), "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyPermissions, perms)))
	})
}

func (a *AuthAPI) permissions(r *http.Request) (*Permissions, error) {
	n, err := a.keys.count(r.Context())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		open := openAPIPermissions
		return &open, nil
	}
	rawKey := r.Header.Get(authHeader)
	if rawKey == "" {
		return nil, errUnknownKey
	}
	return a.keys.lookup(r.Context(), rawKey)
}

func (a *AuthAPI) handleKeys(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, "auth:manage") {
		return
	}
	switch r.Method {
	case http.MethodGet:
		keys, err := a.keys.list(r.Context())
		if err != nil {
			a.logger.Error("Failed to list API keys", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Database query failed")
			return
		}
		respondWithJSON(w, http.StatusOK, keys)
	case http.MethodPost:
		a.createKey(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *AuthAPI) handleKeyByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed for this key resource")
		return
	}
	if !requireScope(w, r, "auth:manage") {
		return
	}
	id, err := strconv.Atoi(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/keys/"), "/"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid key ID format in URL")
		return
	}

	perms, _ := r.Context().Value(contextKeyPermissions).(*Permissions)
	err = a.keys.remove(r.Context(), id, perms.KeyID)
	switch {
	case err == nil:
		a.logger.Info("API key deleted", "id", id, "by", perms.KeyID)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, errKeyNotFound):
		respondWithError(w, http.StatusNotFound, "Key not found")
	case errors.Is(err, errDeleteOwnKey):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errLastMasterKey):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		a.logger.Error("Failed to delete API key", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete key")
	}
}

func (a *AuthAPI) handleCheckMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	perms, ok := r.Context().Value(contextKeyPermissions).(*Permissions)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"key_id": perms.KeyID, "scopes": perms.Scopes()})
}

func (a *AuthAPI) createKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if err := checkScopes(req.Scopes); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		a.logger.Error("Failed to generate new API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Key generation failed")
		return
	}
	id, scopes, err := a.keys.insert(r.Context(), rawKey, req.Description, req.Scopes)
	if err != nil {
		a.logger.Error("Failed to insert new API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to save new key")
		return
	}

	a.logger.Info("API key created", "id", id, "scopes", scopes)
	respondWithJSON(w, http.StatusCreated, CreateKeyResponse{ID: id, RawKey: rawKey, Scopes: scopes})
}

func checkScopes(scopes []string) error {
	for _, s := range scopes {
		if !slices.Contains(knownScopes, s) {
			return fmt.Errorf("%w %q", errUnknownScope, s)
		}
	}
	return nil
}

// hasScope reports whether the request's permissions include scope.
func hasScope(r *http.Request, scope string) bool {
	perms, ok := r.Context().Value(contextKeyPermissions).(*Permissions)
	if !ok {
		return false
	}
	_, master := perms.ScopeSet[scopeMaster]
	_, granted := perms.ScopeSet[scope]
	return master || granted
}

// requireScope writes a 403 and returns false when the request lacks scope.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	if hasScope(r, scope) {
		return true
	}
	respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
	return false
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
