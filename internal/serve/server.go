package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"dashfolio/internal/analytics"
	"dashfolio/internal/domain/config"
	"dashfolio/internal/github"
	"dashfolio/internal/ingest"
	"dashfolio/internal/pv"
	"dashfolio/internal/render"
	"dashfolio/internal/search"
)

type Server struct {
	cfg config.Config

	lib *ingest.Library
	tpl render.Renderer

	pvStore *pv.Store // nil 时接口退回 dummy 数据
	ga      *analytics.Client
	gh      *github.Client

	sseMu     sync.Mutex
	sseConns  map[chan string]struct{}
	watcher   *fsnotify.Watcher
	watchOnce sync.Once
}

func New(cfg config.Config) (*Server, error) {
	md := render.NewMarkdownRenderer(cfg.Content.CodeStyle)
	tpl, err := render.NewTemplateRenderer(cfg.Content.ThemeDir, cfg.Content.Theme)
	if err != nil {
		return nil, fmt.Errorf("serve: failed to create template renderer: %w", err)
	}

	var store *pv.Store
	if cfg.Serve.PVPath != "" {
		store, err = pv.Open(pv.OpenOptions{Path: cfg.Serve.PVPath})
		if err != nil {
			// 计数库开不了不致命，降级成 dummy
			log.Warn().Err(err).Msg("pv store unavailable, view counts degrade to dummy data")
			store = nil
		}
	}

	s := &Server{
		cfg:      cfg,
		lib:      ingest.NewLibrary(cfg.Content.PostsDir, md),
		tpl:      tpl,
		pvStore:  store,
		ga:       analytics.NewClient(cfg.Analytics),
		gh:       github.NewClient(cfg.GitHub.Username),
		sseConns: make(map[chan string]struct{}),
	}
	return s, nil
}

func (s *Server) Close() error {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	return s.pvStore.Close()
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.startWatch(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	// 支持 ctx 取消
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Info().Str("addr", addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler wires up the full route table; split out so tests can hit it
// through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/posts", s.handlePosts)
	mux.HandleFunc("/posts/", s.handlePost)
	mux.HandleFunc("/tags", s.handleTagsRoot)
	mux.HandleFunc("/tags/", s.handleTag)

	mux.HandleFunc("/api/pv", s.handlePVWeek)
	mux.HandleFunc("/api/pv/ranking", s.handlePVRanking)
	mux.HandleFunc("/api/pv/timeline", s.handlePVTimeline)
	mux.HandleFunc("/api/pv/", s.handlePVSlug)
	mux.HandleFunc("/api/github/contributions", s.handleContributions)

	// dev SSE
	mux.HandleFunc("/dev/events", s.handleSSE)

	staticDir := filepath.Join(s.cfg.Content.ThemeDir, s.cfg.Content.Theme, "static")
	fileServer := http.FileServer(http.Dir(staticDir))
	mux.Handle("/css/", fileServer)
	mux.Handle("/js/", fileServer)
	mux.Handle("/images/", fileServer)
	mux.Handle("/favicon.ico", fileServer)

	return mux
}

// ===================== 页面 =====================

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.handleNotFound(w, r)
		return
	}

	metas, err := s.lib.ListAll()
	if err != nil {
		log.Error().Err(err).Msg("home scan error")
		http.Error(w, "home scan error", http.StatusInternalServerError)
		return
	}
	tags, err := s.lib.ListTags()
	if err != nil {
		http.Error(w, "tags scan error", http.StatusInternalServerError)
		return
	}

	recent := metas
	if len(recent) > 5 {
		recent = recent[:5]
	}
	page := render.HomePage{
		Site:      s.cfg.Site,
		Recent:    recent,
		PostCount: len(metas),
		Tags:      tags,
		Generated: time.Now(),
		Title:     "Home",
	}
	htmlBytes, err := s.tpl.RenderHome(r.Context(), page)
	if err != nil {
		log.Error().Err(err).Msg("render home error")
		http.Error(w, "render home error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, htmlBytes)
}

// 列表页：q / tags / sort / page 全在查询串里，状态机与客户端版一致
func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	metas, err := s.lib.SearchIndex()
	if err != nil {
		log.Error().Err(err).Msg("posts scan error")
		http.Error(w, "posts scan error", http.StatusInternalServerError)
		return
	}
	allTags, err := s.lib.ListTags()
	if err != nil {
		http.Error(w, "tags scan error", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	sr := search.NewSearcher(metas, s.cfg.Content.PageSize)
	sr.SetQuery(q.Get("q"))
	if tags, ok := q["tags"]; ok {
		var selected []string
		for _, t := range tags {
			selected = append(selected, strings.Split(t, ",")...)
		}
		sr.SetTags(selected)
	}
	sr.SetSort(search.SortOrder(q.Get("sort")))
	if p, err := strconv.Atoi(q.Get("page")); err == nil {
		sr.SetPage(p)
	}
	res := sr.Results()

	page := render.PostsPage{
		Site:         s.cfg.Site,
		Posts:        res.Posts,
		AllTags:      allTags,
		Query:        sr.Query(),
		SelectedTags: sr.SelectedTags(),
		Sort:         string(sr.Order()),
		Page:         res.Page,
		TotalPages:   res.TotalPages,
		Total:        res.Total,
		Title:        "Posts",
	}
	htmlBytes, err := s.tpl.RenderPosts(r.Context(), page)
	if err != nil {
		log.Error().Err(err).Msg("render posts error")
		http.Error(w, "render posts error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, htmlBytes)
}

// 文章详情页：/posts/<slug>
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimPrefix(r.URL.Path, "/posts/")
	slug = strings.TrimSuffix(slug, "/")
	if slug == "" || strings.Contains(slug, "/") {
		s.handleNotFound(w, r)
		return
	}

	post, err := s.lib.GetBySlug(slug)
	if err != nil {
		log.Error().Err(err).Str("slug", slug).Msg("read post error")
		http.Error(w, "read post error", http.StatusInternalServerError)
		return
	}
	if post == nil {
		s.handleNotFound(w, r)
		return
	}

	related, err := s.lib.Related(post.Slug, post.Tags, 3)
	if err != nil {
		related = nil
	}

	pp := render.PostPage{
		Site:        s.cfg.Site,
		Meta:        post.PostMeta,
		HTML:        template.HTML(post.ContentHTML),
		Toc:         post.Toc,
		ReadingTime: post.ReadingTimeMinutes,
		Related:     related,
		Title:       post.Title,
	}
	htmlBytes, err := s.tpl.RenderPost(r.Context(), pp)
	if err != nil {
		log.Error().Err(err).Msg("render post error")
		http.Error(w, "render post error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, htmlBytes)
}

func (s *Server) handleTagsRoot(w http.ResponseWriter, r *http.Request) {
	tags, err := s.lib.ListTags()
	if err != nil {
		http.Error(w, "tags scan error", http.StatusInternalServerError)
		return
	}
	page := render.TagsPage{
		Site:  s.cfg.Site,
		Tags:  tags,
		Total: len(tags),
		Title: "Tags",
	}
	htmlBytes, err := s.tpl.RenderTags(r.Context(), page)
	if err != nil {
		log.Error().Err(err).Msg("render tags error")
		http.Error(w, "render tags error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, htmlBytes)
}

// 标签页：/tags/<tag>
func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	tag := strings.TrimPrefix(r.URL.Path, "/tags/")
	tag = strings.TrimSuffix(tag, "/")
	if tag == "" {
		s.handleNotFound(w, r)
		return
	}

	items, err := s.lib.GetByTag(tag)
	if err != nil {
		http.Error(w, "tag scan error", http.StatusInternalServerError)
		return
	}
	if len(items) == 0 {
		s.handleNotFound(w, r)
		return
	}

	page := render.TagPage{
		Site:  s.cfg.Site,
		Tag:   tag,
		Posts: items,
		Title: fmt.Sprintf("Tag: %s", tag),
	}
	htmlBytes, err := s.tpl.RenderTag(r.Context(), page)
	if err != nil {
		log.Error().Err(err).Msg("render tag error")
		http.Error(w, "render tag error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, htmlBytes)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	page := render.NotFoundPage{
		Site:  s.cfg.Site,
		Path:  r.URL.Path,
		Title: "Not Found",
	}
	htmlBytes, err := s.tpl.RenderNotFound(r.Context(), page)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(htmlBytes)
}

// ===================== JSON API =====================

func (s *Server) handlePVWeek(w http.ResponseWriter, r *http.Request) {
	rep := s.ga.Week(r.Context())
	writeJSON(w, rep)
}

// /api/pv/<slug>：GET 查计数，POST 加一
func (s *Server) handlePVSlug(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimPrefix(r.URL.Path, "/api/pv/")
	slug = strings.TrimSuffix(slug, "/")
	if slug == "" || strings.Contains(slug, "/") {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "slug is required"})
		return
	}

	type pvResponse struct {
		Slug   string `json:"slug"`
		Count  uint64 `json:"count"`
		Source string `json:"source"`
	}

	switch r.Method {
	case http.MethodPost:
		if s.pvStore == nil {
			writeJSON(w, pvResponse{Slug: slug, Count: pv.DummyCount(slug), Source: analytics.SourceDummy})
			return
		}
		n, err := s.pvStore.Incr(slug)
		if err != nil {
			log.Error().Err(err).Str("slug", slug).Msg("pv incr error")
			writeJSON(w, pvResponse{Slug: slug, Count: pv.DummyCount(slug), Source: analytics.SourceFallback})
			return
		}
		writeJSON(w, pvResponse{Slug: slug, Count: n, Source: "local"})
	case http.MethodGet:
		if s.pvStore != nil {
			if n, ok, err := s.pvStore.Get(slug); err == nil && ok {
				writeJSON(w, pvResponse{Slug: slug, Count: n, Source: "local"})
				return
			}
		}
		writeJSON(w, pvResponse{Slug: slug, Count: pv.DummyCount(slug), Source: analytics.SourceDummy})
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePVRanking(w http.ResponseWriter, r *http.Request) {
	type ranked struct {
		Slug   string `json:"slug"`
		Title  string `json:"title"`
		Count  uint64 `json:"count"`
		Source string `json:"source"`
	}

	metas, err := s.lib.ListAll()
	if err != nil {
		http.Error(w, "posts scan error", http.StatusInternalServerError)
		return
	}
	titles := make(map[string]string, len(metas))
	for _, m := range metas {
		titles[m.Slug] = m.Title
	}

	var out []ranked
	if s.pvStore != nil {
		entries, err := s.pvStore.Top(10)
		if err == nil {
			for _, e := range entries {
				out = append(out, ranked{Slug: e.Slug, Title: titles[e.Slug], Count: e.Count, Source: "local"})
			}
		}
	}
	if len(out) == 0 {
		// 没有计数数据时按 slug 的占位值排个稳定的榜
		for _, m := range metas {
			out = append(out, ranked{Slug: m.Slug, Title: m.Title, Count: pv.DummyCount(m.Slug), Source: analytics.SourceDummy})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Count != out[j].Count {
				return out[i].Count > out[j].Count
			}
			return out[i].Slug < out[j].Slug
		})
		if len(out) > 10 {
			out = out[:10]
		}
	}
	writeJSON(w, map[string]any{"ranking": out})
}

func (s *Server) handlePVTimeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"data":   pv.DummyTimeline(time.Now()),
		"source": analytics.SourceDummy,
	})
}

func (s *Server) handleContributions(w http.ResponseWriter, r *http.Request) {
	cal := s.gh.Contributions(r.Context())
	w.Header().Set("Cache-Control", "private, max-age=300")
	writeJSON(w, cal)
}

// ===================== watch / SSE =====================

func (s *Server) startWatch(ctx context.Context) error {
	var err error
	s.watchOnce.Do(func() {
		w, e := fsnotify.NewWatcher()
		if e != nil {
			err = e
			return
		}
		s.watcher = w

		go s.watchLoop(ctx)

		if e := w.Add(s.cfg.Content.PostsDir); e != nil {
			// 内容目录还不存在不算错误，只是没有热更新
			log.Warn().Err(e).Str("dir", s.cfg.Content.PostsDir).Msg("watch disabled")
		}
	})
	return err
}

func (s *Server) watchLoop(ctx context.Context) {
	log.Info().Msg("watching for content changes")
	debounce := time.NewTicker(time.Hour)
	debounce.Stop()

	trigger := func() {
		select {
		case <-debounce.C:
		default:
		}
		debounce.Reset(200 * time.Millisecond)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				trigger()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher error")
		case <-debounce.C:
			// 内容每次请求都会重扫，这里只需要通知浏览器刷新
			if n, err := s.lib.Count(); err == nil {
				log.Info().Int("posts", n).Msg("content changed")
			}
			s.broadcastSSE("reload")
		}
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan string, 8)

	s.sseMu.Lock()
	s.sseConns[ch] = struct{}{}
	s.sseMu.Unlock()

	defer func() {
		s.sseMu.Lock()
		delete(s.sseConns, ch)
		close(ch)
		s.sseMu.Unlock()
	}()
	fmt.Fprintf(w, "data: %s\n\n", "hello")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) broadcastSSE(msg string) {
	s.sseMu.Lock()
	defer s.sseMu.Unlock()
	for ch := range s.sseConns {
		select {
		case ch <- msg:
		default:
		}
	}
}

// ===================== 工具 =====================

func writeHTML(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
