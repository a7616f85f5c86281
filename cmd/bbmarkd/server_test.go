package main

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/CTAG07/bbmark/pkg/rendercache"
	"github.com/CTAG07/bbmark/pkg/rulestore"
	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*Server
	ts         *httptest.Server
	actionChan chan string
	configPath string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestServer starts a server on a temp-dir database. mutate may adjust
// the config before the server is built.
func setupTestServer(t *testing.T, cache rendercache.Cache, mutate func(*Config)) *testServer {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	cm, err := NewConfigManager(configPath)
	require.NoError(t, err)
	cm.SetLogger(discardLogger())
	if mutate != nil {
		cfg := cm.Get()
		mutate(&cfg)
		require.NoError(t, cm.Update(cfg))
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "bbmark.db")+"?_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, rulestore.SetupSchema(db))
	require.NoError(t, setupAuthSchema(db))
	require.NoError(t, setupStatsSchema(db))

	if cache == nil {
		cache = rendercache.NopCache{}
	}
	actionChan := make(chan string, 1)
	server, err := NewServer(cm, discardLogger(), db, cache, actionChan)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testServer{Server: server, ts: ts, actionChan: actionChan, configPath: configPath}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *http.Response {
	req, err := http.NewRequest(method, s.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthIsUnauthenticated(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	// Lock the API by creating the master key.
	resp := s.do(t, http.MethodPost, "/api/auth/keys", `{"description":"admin"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/render", "[b]x[/b]")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRenderPlain(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	resp := s.do(t, http.MethodPost, "/api/render", "[b]bold[/b] [ignore][i]x[/i][/ignore]")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<b>bold</b> [i]x[/i]", readBody(t, resp))
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "1", resp.Header.Get("X-Rule-Set-Revision"))
	assert.Equal(t, "miss", resp.Header.Get("X-Cache"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp = s.do(t, http.MethodPost, "/api/render?verbatim=false", "[ignore][i]x[/i][/ignore]")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[ignore]<i>x</i>[/ignore]", readBody(t, resp))

	resp = s.do(t, http.MethodPost, "/api/render?verbatim=maybe", "x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/render", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRenderKeepsClientRequestID(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	const id = "0b6f8a7e-4a52-4c36-9d0b-6e2f8b3f9c11"

	resp := s.do(t, http.MethodPost, "/api/render", "x", "X-Request-Id", id)
	assert.Equal(t, id, resp.Header.Get("X-Request-Id"))

	resp = s.do(t, http.MethodPost, "/api/render", "x", "X-Request-Id", "not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", resp.Header.Get("X-Request-Id"))
}

func TestRenderJSON(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	resp := s.do(t, http.MethodPost, "/api/render/json", `{"text":"[size=50]big[/size][size=51]no[/size]"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[RenderResult](t, resp)
	assert.Equal(t, `<span style="font-size: 50px">big</span>[size=51]no[/size]`, res.HTML)
	assert.Equal(t, rulestore.DefaultSetName, res.RuleSet)
	assert.Equal(t, 1, res.Revision)
	assert.False(t, res.Cached)

	resp = s.do(t, http.MethodPost, "/api/render/json", `{"text":"x","set":"missing"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/render/json", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRenderInputLimit(t *testing.T) {
	s := setupTestServer(t, nil, func(c *Config) {
		c.Render.MaxInputBytes = 16
	})

	resp := s.do(t, http.MethodPost, "/api/render", strings.Repeat("a", 17))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/render", strings.Repeat("a", 16))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/render/json", `{"text":"`+strings.Repeat("a", 32)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRenderEngineErrorsAre422(t *testing.T) {
	s := setupTestServer(t, nil, func(c *Config) {
		c.Render.MaxReplacements = 5
	})

	body := `{"name":"broken","rules":[{"pattern":"\\[x\\](.*?)\\[/x\\]","template":"%(3)s"},{"pattern":"a","template":"a"}]}`
	resp := s.do(t, http.MethodPost, "/api/rulesets", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/render?set=broken", "[x]y[/x]")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "%(3)s")

	resp = s.do(t, http.MethodPost, "/api/render?set=broken", "a")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "replacement limit")
}

func TestRenderEscapeInput(t *testing.T) {
	s := setupTestServer(t, nil, func(c *Config) {
		c.Render.EscapeInput = true
	})

	resp := s.do(t, http.MethodPost, "/api/render", `<script>[url="http://x"]a & b[/url]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `&lt;script&gt;<a href="http://x">a &amp; b</a>`, readBody(t, resp))
}

func TestRenderWithExtras(t *testing.T) {
	s := setupTestServer(t, nil, func(c *Config) {
		c.Render.Extras = []string{"css"}
	})

	resp := s.do(t, http.MethodPost, "/api/render", `[css="contrast"]Look![/css]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `<span class="bbcode-contrast">Look!</span>`, readBody(t, resp))

	resp = s.do(t, http.MethodGet, "/api/extras", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `"enabled":["css"]`)
}

func TestRuleSetLifecycle(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	create := `{"name":"forum","description":"forum tags","extends":"default","rules":[{"name":"spoiler","pattern":"\\[spoiler\\](.*?)\\[/spoiler\\]","template":"<details>%(0)s</details>"}]}`
	resp := s.do(t, http.MethodPost, "/api/rulesets", create)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	info := decode[rulestore.RuleSetInfo](t, resp)
	assert.Equal(t, 1, info.Revision)

	resp = s.do(t, http.MethodPost, "/api/rulesets", create)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/render?set=forum", "[spoiler][b]x[/b][/spoiler]")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<details><b>x</b></details>", readBody(t, resp))

	resp = s.do(t, http.MethodPost, "/api/rulesets/forum/rules", `{"rules":[{"pattern":"\\[s\\](.*?)\\[/s\\]","template":"<s>%(0)s</s>"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode[rulestore.RuleSetInfo](t, resp).Revision)

	// The appended rule is live without a restart.
	resp = s.do(t, http.MethodPost, "/api/render?set=forum", "[s]gone[/s]")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<s>gone</s>", readBody(t, resp))
	assert.Equal(t, "2", resp.Header.Get("X-Rule-Set-Revision"))

	resp = s.do(t, http.MethodPost, "/api/rulesets/forum/rules", `{"rules":[{"pattern":"(","template":""}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/rulesets/forum", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[RuleSetResponse](t, resp)
	assert.Equal(t, "forum tags", got.Description)
	assert.Equal(t, "spoiler", got.Rules[len(got.Rules)-2].Name)

	resp = s.do(t, http.MethodGet, "/api/rulesets", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sets := decode[[]rulestore.RuleSetInfo](t, resp)
	require.Len(t, sets, 2)
	assert.Equal(t, "default", sets[0].Name)

	resp = s.do(t, http.MethodDelete, "/api/rulesets/default", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/rulesets/forum", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/render?set=forum", "x")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRuleSetImportExport(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	yamlFile := "name: themed\nextras: [css]\nrules:\n  - pattern: '\\[s\\](.*?)\\[/s\\]'\n    template: '<s>%(0)s</s>'\n"
	resp := s.do(t, http.MethodPost, "/api/rulesets/import?format=yaml", yamlFile)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 2, decode[rulestore.RuleSetInfo](t, resp).RuleCount)

	resp = s.do(t, http.MethodPost, "/api/rulesets/import?format=yaml", yamlFile)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/rulesets/import?format=yaml&replace=true", yamlFile)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 2, decode[rulestore.RuleSetInfo](t, resp).Revision)

	resp = s.do(t, http.MethodPost, "/api/rulesets/import?format=yaml", "name: bad\nextends: phpbb\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/rulesets/themed/export?format=json", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body := readBody(t, resp)
	assert.Contains(t, body, `"name": "themed"`)
	assert.Contains(t, body, `bbcode-%(0)s`)

	resp = s.do(t, http.MethodGet, "/api/rulesets/themed/export?format=toml", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRenderCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache := rendercache.NewRedis(mr.Addr(), "", 0, rendercache.WithPrefix("test:"))
	defer func() { _ = cache.Close() }()
	s := setupTestServer(t, cache, nil)

	resp := s.do(t, http.MethodPost, "/api/render", "[b]x[/b]")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "miss", resp.Header.Get("X-Cache"))

	resp = s.do(t, http.MethodPost, "/api/render", "[b]x[/b]")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hit", resp.Header.Get("X-Cache"))
	assert.Equal(t, "<b>x</b>", readBody(t, resp))

	// Verbatim handling is part of the key.
	resp = s.do(t, http.MethodPost, "/api/render?verbatim=false", "[b]x[/b]")
	assert.Equal(t, "miss", resp.Header.Get("X-Cache"))

	resp = s.do(t, http.MethodGet, "/api/stats/summary", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary := decode[GlobalStatsSummary](t, resp)
	assert.Equal(t, int64(3), summary.TotalRenders)
	assert.Equal(t, int64(1), summary.CacheHits)
	assert.Equal(t, int64(1), summary.RuleSetsUsed)
}

func TestRenderCacheAfterRuleSetRecreated(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache := rendercache.NewRedis(mr.Addr(), "", 0, rendercache.WithPrefix("test:"))
	defer func() { _ = cache.Close() }()
	s := setupTestServer(t, cache, nil)

	resp := s.do(t, http.MethodPost, "/api/rulesets", `{"name":"forum","rules":[{"pattern":"\\[s\\](.*?)\\[/s\\]","template":"<s>%(0)s</s>"}]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/render?set=forum", "[s]x[/s]")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<s>x</s>", readBody(t, resp))
	assert.Equal(t, "miss", resp.Header.Get("X-Cache"))

	resp = s.do(t, http.MethodDelete, "/api/rulesets/forum", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/rulesets", `{"name":"forum","rules":[{"pattern":"\\[s\\](.*?)\\[/s\\]","template":"<del>%(0)s</del>"}]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, decode[rulestore.RuleSetInfo](t, resp).Revision)

	// Same name and revision as before, different rules.
	resp = s.do(t, http.MethodPost, "/api/render?set=forum", "[s]x[/s]")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<del>x</del>", readBody(t, resp))
	assert.Equal(t, "miss", resp.Header.Get("X-Cache"))
	assert.Equal(t, "1", resp.Header.Get("X-Rule-Set-Revision"))

	resp = s.do(t, http.MethodPost, "/api/render?set=forum", "[s]x[/s]")
	assert.Equal(t, "hit", resp.Header.Get("X-Cache"))
	assert.Equal(t, "<del>x</del>", readBody(t, resp))
}

func TestStatsPerRuleSet(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	s.do(t, http.MethodPost, "/api/render", "[b]x[/b]")
	s.do(t, http.MethodPost, "/api/render", "[i]x[/i]")

	resp := s.do(t, http.MethodGet, "/api/stats/rulesets", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[[]RuleSetStats](t, resp)
	require.Len(t, stats, 1)
	assert.Equal(t, "default", stats[0].RuleSet)
	assert.Equal(t, int64(2), stats[0].TotalRenders)
	assert.Equal(t, int64(16), stats[0].BytesIn)
}

func TestMetricsEndpoint(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	s.do(t, http.MethodPost, "/api/render", "[b]x[/b]")

	resp := s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `bbmark_renders_total{result="rendered",rule_set="default"} 1`)
	assert.Contains(t, body, "bbmark_render_duration_seconds")
}

func TestMetricsDisabled(t *testing.T) {
	s := setupTestServer(t, nil, func(c *Config) {
		c.Server.MetricsEnabled = false
	})
	resp := s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthScopes(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	resp := s.do(t, http.MethodPost, "/api/auth/keys", `{"description":"admin","scopes":["render"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	master := decode[CreateKeyResponse](t, resp)
	assert.Equal(t, []string{"*"}, master.Scopes, "the first key is always a master key")
	assert.True(t, strings.HasPrefix(master.RawKey, "bbm_"))

	resp = s.do(t, http.MethodPost, "/api/auth/keys", `{"description":"renderer","scopes":["render"]}`, authHeader, master.RawKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	renderKey := decode[CreateKeyResponse](t, resp)

	resp = s.do(t, http.MethodPost, "/api/auth/keys", `{"scopes":["root"]}`, authHeader, master.RawKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/render", "[b]x[/b]", authHeader, renderKey.RawKey)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/rulesets", "", authHeader, renderKey.RawKey)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/auth/me", "", authHeader, renderKey.RawKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `"scopes":["render"]`)

	resp = s.do(t, http.MethodPost, "/api/render", "x", authHeader, "bbm_wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/auth/keys/1", "", authHeader, master.RawKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/auth/keys", "", authHeader, master.RawKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]APIKeyInfo](t, resp), 2)
}

func TestDeleteKeys(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	create := func(by, body string) CreateKeyResponse {
		t.Helper()
		var headers []string
		if by != "" {
			headers = []string{authHeader, by}
		}
		resp := s.do(t, http.MethodPost, "/api/auth/keys", body, headers...)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		return decode[CreateKeyResponse](t, resp)
	}
	master := create("", `{"description":"admin"}`)
	manager := create(master.RawKey, `{"description":"manager","scopes":["auth:manage"]}`)

	resp := s.do(t, http.MethodDelete, "/api/auth/keys/"+strconv.Itoa(master.ID), "", authHeader, manager.RawKey)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "the last master key must survive")

	second := create(master.RawKey, `{"description":"backup","scopes":["*"]}`)
	resp = s.do(t, http.MethodDelete, "/api/auth/keys/"+strconv.Itoa(second.ID), "", authHeader, manager.RawKey)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/auth/keys/"+strconv.Itoa(manager.ID), "", authHeader, manager.RawKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/auth/keys/999", "", authHeader, master.RawKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/auth/keys/"+strconv.Itoa(manager.ID), "", authHeader, master.RawKey)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/auth/keys", "", authHeader, manager.RawKey)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConfigUpdateAppliesRenderSettings(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	resp := s.do(t, http.MethodGet, "/api/server/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := decode[Config](t, resp)
	assert.True(t, cfg.Render.SkipVerbatim)

	cfg.Render.VerbatimOpen = "[raw]"
	cfg.Render.VerbatimClose = "[/raw]"
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	resp = s.do(t, http.MethodPut, "/api/server/config", string(data))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/render", "[raw][b]x[/b][/raw]")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[b]x[/b]", readBody(t, resp))

	saved, err := LoadConfig(s.configPath)
	require.NoError(t, err)
	assert.Equal(t, "[raw]", saved.Render.VerbatimOpen)

	cfg.Render.Extras = []string{"nope"}
	data, err = json.Marshal(cfg)
	require.NoError(t, err)
	resp = s.do(t, http.MethodPut, "/api/server/config", string(data))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerActions(t *testing.T) {
	s := setupTestServer(t, nil, nil)

	resp := s.do(t, http.MethodPost, "/api/server/restart", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, actionRestart, <-s.actionChan)

	resp = s.do(t, http.MethodGet, "/api/server/shutdown", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/server/version", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1.1", decode[VersionInfo](t, resp).RulesVersion)
}

func TestSeedRuleSets(t *testing.T) {
	s := setupTestServer(t, nil, nil)
	dir := t.TempDir()

	file := "name: forum\nextends: default\nrules:\n  - pattern: '\\[s\\](.*?)\\[/s\\]'\n    template: '<s>%(0)s</s>'\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "forum.yaml"), []byte(file), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("rules: ["), 0o644))

	ctx := t.Context()
	require.NoError(t, s.SeedRuleSets(ctx, dir))
	require.NoError(t, s.SeedRuleSets(ctx, dir))

	info, _, err := s.store.GetRuleSet(ctx, "forum")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Revision, "seeding unchanged rules must not bump the revision")

	require.NoError(t, s.SeedRuleSets(ctx, filepath.Join(dir, "missing")))
}
