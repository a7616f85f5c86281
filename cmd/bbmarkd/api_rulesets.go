package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/CTAG07/bbmark/pkg/rulestore"
)

// RuleSetAPI holds the dependencies for the rule set handlers.
type RuleSetAPI struct {
	store    *rulestore.Store
	renderer *Renderer
	metrics  *Metrics
	logger   *slog.Logger
}

// RuleSetResponse is a rule set with its rules.
type RuleSetResponse struct {
	rulestore.RuleSetInfo
	Rules []bbcode.RuleSpec `json:"rules"`
}

// AppendRulesRequest is the expected JSON body for appending rules.
type AppendRulesRequest struct {
	Rules []bbcode.RuleSpec `json:"rules"`
}

func NewRuleSetAPI(store *rulestore.Store, renderer *Renderer, metrics *Metrics, logger *slog.Logger) *RuleSetAPI {
	return &RuleSetAPI{
		store:    store,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for all /api/rulesets endpoints.
func (a *RuleSetAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rulesets", a.handleListAndCreate)
	mux.HandleFunc("/api/rulesets/import", a.handleImport)
	mux.HandleFunc("/api/rulesets/", a.handleRuleSetByName)
}

// handleListAndCreate handles GET for listing and POST for creating rule sets.
// A create request body is a rule file in JSON.
func (a *RuleSetAPI) handleListAndCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, "rules:read") {
			return
		}
		sets, err := a.store.ListRuleSets(r.Context())
		if err != nil {
			a.logger.Error("Failed to list rule sets", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to retrieve rule sets")
			return
		}
		respondWithJSON(w, http.StatusOK, sets)

	case http.MethodPost:
		if !requireScope(w, r, "rules:write") {
			return
		}
		var f bbcode.RuleFile
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		info, err := a.store.ImportRuleSet(r.Context(), &f, false)
		if err != nil {
			a.respondWithStoreError(w, err)
			return
		}
		a.changed(info.Name, "create")
		respondWithJSON(w, http.StatusCreated, info)

	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleImport stores a rule file given in the request body. The format is
// taken from the format query parameter and defaults to YAML.
func (a *RuleSetAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, "rules:write") {
		return
	}

	replace := false
	if v := r.URL.Query().Get("replace"); v != "" {
		var err error
		if replace, err = strconv.ParseBool(v); err != nil {
			respondWithError(w, http.StatusBadRequest, "replace must be true or false")
			return
		}
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	f, err := bbcode.ParseRuleFile(data, r.URL.Query().Get("format"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid rule file: "+err.Error())
		return
	}
	if name := r.URL.Query().Get("name"); name != "" {
		f.Name = name
	}

	info, err := a.store.ImportRuleSet(r.Context(), f, replace)
	if err != nil {
		a.respondWithStoreError(w, err)
		return
	}
	a.changed(info.Name, "import")
	respondWithJSON(w, http.StatusCreated, info)
}

// handleRuleSetByName routes actions for a specific rule set.
func (a *RuleSetAPI) handleRuleSetByName(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/rulesets/"), "/")
	parts := strings.Split(path, "/")
	name := parts[0]
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Rule set name not specified")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a.getRuleSet(w, r, name)
		case http.MethodDelete:
			a.deleteRuleSet(w, r, name)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(parts) > 2 {
		respondWithError(w, http.StatusNotFound, "Unknown rule set action")
		return
	}

	switch parts[1] {
	case "rules":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.appendRules(w, r, name)
	case "export":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.exportRuleSet(w, r, name)
	default:
		respondWithError(w, http.StatusNotFound, "Unknown rule set action")
	}
}

func (a *RuleSetAPI) getRuleSet(w http.ResponseWriter, r *http.Request, name string) {
	if !requireScope(w, r, "rules:read") {
		return
	}
	info, specs, err := a.store.GetRuleSet(r.Context(), name)
	if err != nil {
		a.respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, RuleSetResponse{RuleSetInfo: info, Rules: specs})
}

func (a *RuleSetAPI) deleteRuleSet(w http.ResponseWriter, r *http.Request, name string) {
	if !requireScope(w, r, "rules:write") {
		return
	}
	if err := a.store.DeleteRuleSet(r.Context(), name); err != nil {
		a.respondWithStoreError(w, err)
		return
	}
	a.changed(name, "delete")
	w.WriteHeader(http.StatusNoContent)
}

func (a *RuleSetAPI) appendRules(w http.ResponseWriter, r *http.Request, name string) {
	if !requireScope(w, r, "rules:write") {
		return
	}
	var req AppendRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if len(req.Rules) == 0 {
		respondWithError(w, http.StatusBadRequest, "At least one rule is required")
		return
	}
	info, err := a.store.AppendRules(r.Context(), name, req.Rules)
	if err != nil {
		a.respondWithStoreError(w, err)
		return
	}
	a.changed(name, "append")
	respondWithJSON(w, http.StatusOK, info)
}

func (a *RuleSetAPI) exportRuleSet(w http.ResponseWriter, r *http.Request, name string) {
	if !requireScope(w, r, "rules:read") {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = bbcode.FormatYAML
	}

	f, err := a.store.ExportRuleSet(r.Context(), name)
	if err != nil {
		a.respondWithStoreError(w, err)
		return
	}
	data, err := f.Marshal(format)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if strings.EqualFold(format, bbcode.FormatJSON) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.json"`)
	} else {
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.yaml"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// changed drops the compiled copy of a rule set after a write.
func (a *RuleSetAPI) changed(name, op string) {
	a.renderer.Invalidate(name)
	a.metrics.ObserveRuleSetWrite(op)
	a.logger.Info("Rule set changed via API", "rule_set", name, "op", op)
}

// respondWithStoreError maps rule store errors to status codes.
func (a *RuleSetAPI) respondWithStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rulestore.ErrRuleSetNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rulestore.ErrRuleSetExists):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rulestore.ErrReadOnly):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rulestore.ErrInvalidName), errors.Is(err, bbcode.ErrUnknownRule):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, bbcode.ErrPatternCompile):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		a.logger.Error("Rule store operation failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Rule store operation failed")
	}
}
