package serve

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashfolio/internal/domain/config"
)

// 测试用最小主题,每个模板只吐关键字段
var testTemplates = map[string]string{
	"home.tmpl":  `home posts={{.PostCount}} tags={{len .Tags}}`,
	"posts.tmpl": `posts total={{.Total}} page={{.Page}}/{{.TotalPages}}{{range .Posts}} [{{.Slug}}]{{end}}`,
	"post.tmpl":  `post title={{.Meta.Title}} toc={{len .Toc}} related={{len .Related}} {{.HTML}}`,
	"tags.tmpl":  `tags total={{.Total}}`,
	"tag.tmpl":   `tag {{.Tag}} n={{len .Posts}}`,
	"404.tmpl":   `missing {{.Path}}`,
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	root := t.TempDir()

	tplDir := filepath.Join(root, "themes", "default", "templates")
	require.NoError(t, os.MkdirAll(tplDir, 0o755))
	for name, body := range testTemplates {
		require.NoError(t, os.WriteFile(filepath.Join(tplDir, name), []byte(body), 0o644))
	}

	postsDir := filepath.Join(root, "content", "posts")
	require.NoError(t, os.MkdirAll(postsDir, 0o755))
	posts := map[string]string{
		"hello.md": "---\ntitle: Hello\ndate: \"2025-04-01\"\ntags: [go]\n---\n## Intro\n\nbody\n",
		"world.md": "---\ntitle: World\ndate: \"2025-03-01\"\ntags: [go, web]\n---\ntext\n",
	}
	for name, body := range posts {
		require.NoError(t, os.WriteFile(filepath.Join(postsDir, name), []byte(body), 0o644))
	}

	cfg := config.Default()
	cfg.Content.PostsDir = postsDir
	cfg.Content.ThemeDir = filepath.Join(root, "themes")
	cfg.Serve.PVPath = filepath.Join(root, "pv.db")

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHome(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "home posts=2 tags=2")
}

func TestUnknownPathIs404(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing /nope")
}

func TestPostsList(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/posts")
	assert.Equal(t, http.StatusOK, rec.Code)
	// 默认按日期降序:hello(04-01) 在 world(03-01) 前
	assert.Contains(t, rec.Body.String(), "total=2 page=1/1 [hello] [world]")
}

func TestPostsQueryFilters(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/posts?q=hello")
	assert.Contains(t, rec.Body.String(), "total=1")
	assert.Contains(t, rec.Body.String(), "[hello]")
	assert.NotContains(t, rec.Body.String(), "[world]")
}

func TestPostsTagFilterIsAND(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/posts?tags=go,web")
	assert.Contains(t, rec.Body.String(), "total=1")
	assert.Contains(t, rec.Body.String(), "[world]")
}

func TestPostsSortOldest(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/posts?sort=oldest")
	assert.Contains(t, rec.Body.String(), "[world] [hello]")
}

func TestPostDetail(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/posts/hello")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "title=Hello")
	assert.Contains(t, body, "toc=1")
	assert.Contains(t, body, `id="intro"`)
}

func TestPostDetailMissing(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/posts/ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTagsOverview(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/tags")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tags total=2")
}

func TestTagPage(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/tags/go")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tag go n=2")

	rec = do(t, s, http.MethodGet, "/tags/none")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPVSlugIncrementAndGet(t *testing.T) {
	s := newTestServer(t)

	var resp struct {
		Slug   string `json:"slug"`
		Count  uint64 `json:"count"`
		Source string `json:"source"`
	}

	rec := do(t, s, http.MethodPost, "/api/pv/hello")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.Count)
	assert.Equal(t, "local", resp.Source)

	rec = do(t, s, http.MethodPost, "/api/pv/hello")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(2), resp.Count)

	rec = do(t, s, http.MethodGet, "/api/pv/hello")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(2), resp.Count)
	assert.Equal(t, "local", resp.Source)
}

func TestPVSlugUncountedIsDummy(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/pv/never-counted")
	var resp struct {
		Source string `json:"source"`
		Count  uint64 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dummy", resp.Source)
	assert.GreaterOrEqual(t, resp.Count, uint64(50))
}

func TestPVSlugBadRequests(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/pv/")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/pv/hello")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestPVWeekUnconfigured(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/pv")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Source  string `json:"source"`
		TotalPV int    `json:"totalPV"`
		Data    []any  `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dummy", resp.Source)
	assert.Equal(t, 1096, resp.TotalPV)
	assert.Len(t, resp.Data, 7)
}

func TestPVRankingFallsBackToDummy(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/pv/ranking")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Ranking []struct {
			Slug   string `json:"slug"`
			Title  string `json:"title"`
			Source string `json:"source"`
		} `json:"ranking"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Ranking, 2)
	assert.Equal(t, "dummy", resp.Ranking[0].Source)
	assert.NotEmpty(t, resp.Ranking[0].Title)
}

func TestPVRankingUsesStore(t *testing.T) {
	s := newTestServer(t)
	do(t, s, http.MethodPost, "/api/pv/world")
	do(t, s, http.MethodPost, "/api/pv/world")
	do(t, s, http.MethodPost, "/api/pv/hello")

	rec := do(t, s, http.MethodGet, "/api/pv/ranking")
	var resp struct {
		Ranking []struct {
			Slug  string `json:"slug"`
			Count uint64 `json:"count"`
		} `json:"ranking"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Ranking, 2)
	assert.Equal(t, "world", resp.Ranking[0].Slug)
	assert.Equal(t, uint64(2), resp.Ranking[0].Count)
}

func TestPVTimeline(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/pv/timeline")
	var resp struct {
		Data   []any  `json:"data"`
		Source string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 12)
	assert.Equal(t, "dummy", resp.Source)
}

func TestContributionsNoUsername(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/github/contributions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private, max-age=300", rec.Header().Get("Cache-Control"))

	var resp struct {
		Source string `json:"source"`
		Days   []any  `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dummy", resp.Source)
	assert.Len(t, resp.Days, 84)
}

func TestJSONCacheHeader(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/pv")
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}
