package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/bbmark/pkg/bbcode"
	"github.com/CTAG07/bbmark/pkg/rendercache"
	"github.com/CTAG07/bbmark/pkg/rulestore"
)

// markupEscaper escapes the characters that would let user input inject HTML.
// Quotes are left alone so quoted tag attributes such as [url="..."] still match.
var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// RenderRequest is a single render job.
type RenderRequest struct {
	Text    string
	RuleSet string // empty selects the configured default set
	// SkipVerbatim overrides the configured verbatim handling when set.
	SkipVerbatim *bool
}

// RenderResult is the outcome of a render job.
type RenderResult struct {
	HTML     string `json:"html"`
	RuleSet  string `json:"rule_set"`
	Revision int    `json:"revision"`
	Cached   bool   `json:"cached"`
}

// compiledSet is a rule set revision with a transformer ready to run.
type compiledSet struct {
	info        rulestore.RuleSetInfo
	digest      string
	transformer *bbcode.Transformer
}

// StatsRecorder persists per rule set render counters.
type StatsRecorder interface {
	RecordRender(ctx context.Context, ruleSet string, bytesIn, bytesOut int, cached, failed bool) error
}

// Renderer turns markup into HTML using rule sets from the store. Compiled
// sets are kept in memory until their rules or the render config change.
type Renderer struct {
	store   *rulestore.Store
	cache   rendercache.Cache
	metrics *Metrics
	stats   StatsRecorder
	logger  *slog.Logger

	mu       sync.RWMutex
	cfg      RenderConfig
	compiled map[string]*compiledSet
	gen      uint64 // bumped whenever compiled entries become stale
}

// NewRenderer creates a Renderer. cache, metrics and stats may be nil.
func NewRenderer(store *rulestore.Store, cache rendercache.Cache, metrics *Metrics, stats StatsRecorder, logger *slog.Logger) *Renderer {
	if cache == nil {
		cache = rendercache.NopCache{}
	}
	return &Renderer{
		store:    store,
		cache:    cache,
		metrics:  metrics,
		stats:    stats,
		logger:   logger,
		cfg:      *DefaultRenderConfig(),
		compiled: make(map[string]*compiledSet),
	}
}

// SetConfig replaces the render config and drops every compiled set.
func (r *Renderer) SetConfig(cfg RenderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.gen++
	clear(r.compiled)
}

// Config returns the render config in use.
func (r *Renderer) Config() RenderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Invalidate drops the compiled form of a rule set, so the next render loads
// it from the store again.
func (r *Renderer) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	delete(r.compiled, name)
}

// compile returns the transformer for name, loading it from the store on the
// first use. The configured extras are appended to the built-in set only.
func (r *Renderer) compile(ctx context.Context, name string) (*compiledSet, RenderConfig, error) {
	r.mu.RLock()
	cfg := r.cfg
	gen := r.gen
	cs, ok := r.compiled[name]
	r.mu.RUnlock()
	if ok {
		return cs, cfg, nil
	}

	table, info, err := r.store.Table(ctx, name)
	if err != nil {
		return nil, cfg, err
	}
	if name == rulestore.DefaultSetName {
		for _, extra := range cfg.Extras {
			if err = bbcode.AddExtra(table, extra); err != nil {
				return nil, cfg, err
			}
		}
	}

	cs = &compiledSet{
		info:   info,
		digest: rendercache.RulesDigest(table.Specs()),
		transformer: bbcode.NewTransformer(table,
			bbcode.WithVerbatimMarkers(cfg.VerbatimOpen, cfg.VerbatimClose),
			bbcode.WithMaxReplacements(cfg.MaxReplacements),
		),
	}

	r.mu.Lock()
	// Anything invalidated while loading may be stale; use it once, keep it not.
	if r.gen == gen {
		r.compiled[name] = cs
	}
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "Rule set compiled",
		slog.String("rule_set", name),
		slog.Int("revision", info.Revision),
		slog.Int("rules", table.Len()),
	)
	return cs, cfg, nil
}

// Render runs req through the cache and, on a miss, the transformer.
func (r *Renderer) Render(ctx context.Context, req RenderRequest) (RenderResult, error) {
	start := time.Now()

	name := req.RuleSet
	if name == "" {
		name = r.Config().DefaultRuleSet
	}

	cs, cfg, err := r.compile(ctx, name)
	if err != nil {
		return RenderResult{}, err
	}

	skip := cfg.SkipVerbatim
	if req.SkipVerbatim != nil {
		skip = *req.SkipVerbatim
	}

	result := RenderResult{RuleSet: name, Revision: cs.info.Revision}
	params := rendercache.KeyParams{
		RuleSet:         name,
		Revision:        cs.info.Revision,
		Rules:           cs.digest,
		SkipVerbatim:    skip,
		EscapeInput:     cfg.EscapeInput,
		MaxReplacements: cfg.MaxReplacements,
	}
	if name == rulestore.DefaultSetName {
		params.Extras = cfg.Extras
	}
	if skip {
		params.VerbatimOpen, params.VerbatimClose = cs.transformer.VerbatimMarkers()
	}
	key := rendercache.Key(params, req.Text)

	if out, ok := r.cache.Get(ctx, key); ok {
		result.HTML = out
		result.Cached = true
		r.record(ctx, name, resultCacheHit, len(req.Text), len(out), time.Since(start))
		return result, nil
	}

	text := req.Text
	if cfg.EscapeInput {
		text = markupEscaper.Replace(text)
	}

	var out string
	if skip {
		out, err = cs.transformer.TransformSkippingVerbatim(text)
	} else {
		out, err = cs.transformer.Transform(text)
	}
	if err != nil {
		r.record(ctx, name, resultError, len(req.Text), 0, time.Since(start))
		return RenderResult{}, fmt.Errorf("render with rule set %q failed: %w", name, err)
	}

	r.cache.Set(ctx, key, out)
	result.HTML = out
	r.record(ctx, name, resultRendered, len(req.Text), len(out), time.Since(start))
	return result, nil
}

func (r *Renderer) record(ctx context.Context, name, result string, in, out int, took time.Duration) {
	r.metrics.ObserveRender(name, result, in, took)
	if r.stats == nil {
		return
	}
	if err := r.stats.RecordRender(ctx, name, in, out, result == resultCacheHit, result == resultError); err != nil {
		r.logger.WarnContext(ctx, "Failed to record render stats", "rule_set", name, "error", err)
	}
}
