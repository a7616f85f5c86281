package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/CTAG07/bbmark/pkg/rulestore"
)

// RenderAPI holds the dependencies for the render handlers.
type RenderAPI struct {
	renderer *Renderer
	logger   *slog.Logger
}

// RenderJSONRequest is the expected JSON body of /api/render/json.
type RenderJSONRequest struct {
	Text         string `json:"text"`
	Set          string `json:"set"`
	SkipVerbatim *bool  `json:"skip_verbatim"`
}

// ExtraInfo describes one optional rule.
type ExtraInfo struct {
	Name     string `json:"name"`
	Pattern  string `json:"pattern"`
	Template string `json:"template"`
}

func NewRenderAPI(renderer *Renderer, logger *slog.Logger) *RenderAPI {
	return &RenderAPI{
		renderer: renderer,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for the render endpoints.
func (a *RenderAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/render", a.handleRender)
	mux.HandleFunc("/api/render/json", a.handleRenderJSON)
	mux.HandleFunc("/api/extras", a.handleExtras)
}

// handleRender renders the raw request body and answers with HTML.
func (a *RenderAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, "render") {
		return
	}

	req := RenderRequest{RuleSet: r.URL.Query().Get("set")}
	if v := r.URL.Query().Get("verbatim"); v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "verbatim must be true or false")
			return
		}
		req.SkipVerbatim = &skip
	}

	body, err := io.ReadAll(a.limitBody(w, r))
	if err != nil {
		a.respondWithReadError(w, err)
		return
	}
	req.Text = string(body)

	res, err := a.renderer.Render(r.Context(), req)
	if err != nil {
		a.respondWithRenderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Rule-Set", res.RuleSet)
	w.Header().Set("X-Rule-Set-Revision", strconv.Itoa(res.Revision))
	if res.Cached {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, res.HTML)
}

// handleRenderJSON renders the text of a JSON request and answers with JSON.
func (a *RenderAPI) handleRenderJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, "render") {
		return
	}

	var body RenderJSONRequest
	if err := json.NewDecoder(a.limitBody(w, r)).Decode(&body); err != nil {
		a.respondWithReadError(w, err)
		return
	}

	res, err := a.renderer.Render(r.Context(), RenderRequest{
		Text:         body.Text,
		RuleSet:      body.Set,
		SkipVerbatim: body.SkipVerbatim,
	})
	if err != nil {
		a.respondWithRenderError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// handleExtras lists the optional rules that can be enabled in the config or
// pulled into rule files.
func (a *RenderAPI) handleExtras(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, "rules:read") {
		return
	}
	names := bbcode.ExtraNames()
	extras := make([]ExtraInfo, 0, len(names))
	for _, name := range names {
		spec, _ := bbcode.Extra(name)
		extras = append(extras, ExtraInfo{Name: name, Pattern: spec.Pattern, Template: spec.Template})
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"enabled": a.renderer.Config().Extras,
		"extras":  extras,
	})
}

// limitBody caps the request body at the configured max_input_bytes.
func (a *RenderAPI) limitBody(w http.ResponseWriter, r *http.Request) io.Reader {
	if limit := a.renderer.Config().MaxInputBytes; limit > 0 {
		return http.MaxBytesReader(w, r.Body, limit)
	}
	return r.Body
}

func (a *RenderAPI) respondWithReadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Input exceeds %d bytes", tooLarge.Limit))
		return
	}
	respondWithError(w, http.StatusBadRequest, "Invalid request body")
}

// respondWithRenderError maps store and engine errors to status codes.
func (a *RenderAPI) respondWithRenderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rulestore.ErrRuleSetNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rulestore.ErrInvalidName):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, bbcode.ErrTemplateBinding), errors.Is(err, bbcode.ErrReplacementLimit):
		a.logger.Warn("Render rejected", "request_id", requestID(r.Context()), "error", err)
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		a.logger.Error("Render failed", "request_id", requestID(r.Context()), "error", err)
		respondWithError(w, http.StatusInternalServerError, "Render failed")
	}
}
