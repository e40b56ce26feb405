package build

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"dashfolio/internal/domain/config"
	"dashfolio/internal/domain/content"
	"dashfolio/internal/ingest"
	"dashfolio/internal/render"
	"dashfolio/internal/search"
)

// Builder renders the whole site into the public directory. Post pages fan
// out across a bounded errgroup; everything else is cheap enough to do
// inline.
type Builder struct {
	Cfg config.Config
}

type Result struct {
	Posts int
	Pages int
}

func (b *Builder) Run(ctx context.Context) (*Result, error) {
	md := render.NewMarkdownRenderer(b.Cfg.Content.CodeStyle)
	lib := ingest.NewLibrary(b.Cfg.Content.PostsDir, md)

	tpl, err := render.NewTemplateRenderer(b.Cfg.Content.ThemeDir, b.Cfg.Content.Theme)
	if err != nil {
		return nil, fmt.Errorf("load theme(%s): %w", b.Cfg.Content.ThemeDir, err)
	}

	outDir := b.Cfg.Content.PublicDir
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir public: %w", err)
	}

	metas, err := lib.ListAll()
	if err != nil {
		return nil, fmt.Errorf("scan posts: %w", err)
	}
	tags, err := lib.ListTags()
	if err != nil {
		return nil, fmt.Errorf("scan tags: %w", err)
	}

	pages := 0

	if err := b.buildHome(ctx, tpl, outDir, metas, tags); err != nil {
		return nil, fmt.Errorf("build home: %w", err)
	}
	pages++

	n, err := b.buildPostsIndex(ctx, tpl, outDir, metas, tags)
	if err != nil {
		return nil, fmt.Errorf("build posts index: %w", err)
	}
	pages += n

	if err := b.buildPosts(ctx, lib, tpl, outDir, metas); err != nil {
		return nil, fmt.Errorf("build posts: %w", err)
	}
	pages += len(metas)

	if err := b.buildTags(ctx, lib, tpl, outDir, tags); err != nil {
		return nil, fmt.Errorf("build tags: %w", err)
	}
	pages += len(tags) + 1

	if err := b.buildNotFound(ctx, tpl, outDir); err != nil {
		return nil, fmt.Errorf("build 404: %w", err)
	}
	pages++

	if err := b.copyStaticAssets(outDir); err != nil {
		return nil, fmt.Errorf("copy static assets: %w", err)
	}

	log.Info().Int("posts", len(metas)).Int("pages", pages).Msg("build complete")
	return &Result{Posts: len(metas), Pages: pages}, nil
}

func (b *Builder) buildHome(ctx context.Context, tpl render.Renderer, outDir string, metas []content.PostMeta, tags []content.TagCount) error {
	recent := metas
	if len(recent) > 5 {
		recent = recent[:5]
	}
	htmlBytes, err := tpl.RenderHome(ctx, render.HomePage{
		Site:      b.Cfg.Site,
		Recent:    recent,
		PostCount: len(metas),
		Tags:      tags,
		Generated: time.Now(),
		Title:     "Home",
	})
	if err != nil {
		return err
	}
	return writePage(outDir, "index.html", htmlBytes)
}

// buildPostsIndex 把列表页按固定页大小铺成 /posts/page/N/
func (b *Builder) buildPostsIndex(ctx context.Context, tpl render.Renderer, outDir string, metas []content.PostMeta, tags []content.TagCount) (int, error) {
	sr := search.NewSearcher(metas, b.Cfg.Content.PageSize)
	res := sr.Results()

	for p := 1; p <= res.TotalPages; p++ {
		sr.SetPage(p)
		res = sr.Results()
		htmlBytes, err := tpl.RenderPosts(ctx, render.PostsPage{
			Site:       b.Cfg.Site,
			Posts:      res.Posts,
			AllTags:    tags,
			Sort:       string(search.SortNewest),
			Page:       res.Page,
			TotalPages: res.TotalPages,
			Total:      res.Total,
			Title:      "Posts",
		})
		if err != nil {
			return 0, err
		}
		rel := filepath.Join("posts", "index.html")
		if p > 1 {
			rel = filepath.Join("posts", "page", fmt.Sprintf("%d", p), "index.html")
		}
		if err := writePage(outDir, rel, htmlBytes); err != nil {
			return 0, err
		}
	}
	return res.TotalPages, nil
}

func (b *Builder) buildPosts(ctx context.Context, lib *ingest.Library, tpl render.Renderer, outDir string, metas []content.PostMeta) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, m := range metas {
		m := m
		g.Go(func() error {
			post, err := lib.GetBySlug(m.Slug)
			if err != nil {
				return err
			}
			if post == nil {
				return nil
			}
			related, _ := lib.Related(post.Slug, post.Tags, 3)
			htmlBytes, err := tpl.RenderPost(ctx, render.PostPage{
				Site:        b.Cfg.Site,
				Meta:        post.PostMeta,
				HTML:        template.HTML(post.ContentHTML),
				Toc:         post.Toc,
				ReadingTime: post.ReadingTimeMinutes,
				Related:     related,
				Title:       post.Title,
			})
			if err != nil {
				return err
			}
			return writePage(outDir, filepath.Join("posts", post.Slug, "index.html"), htmlBytes)
		})
	}
	return g.Wait()
}

func (b *Builder) buildTags(ctx context.Context, lib *ingest.Library, tpl render.Renderer, outDir string, tags []content.TagCount) error {
	htmlBytes, err := tpl.RenderTags(ctx, render.TagsPage{
		Site:  b.Cfg.Site,
		Tags:  tags,
		Total: len(tags),
		Title: "Tags",
	})
	if err != nil {
		return err
	}
	if err := writePage(outDir, filepath.Join("tags", "index.html"), htmlBytes); err != nil {
		return err
	}

	for _, tc := range tags {
		items, err := lib.GetByTag(tc.Tag)
		if err != nil {
			return err
		}
		htmlBytes, err := tpl.RenderTag(ctx, render.TagPage{
			Site:  b.Cfg.Site,
			Tag:   tc.Tag,
			Posts: items,
			Title: fmt.Sprintf("Tag: %s", tc.Tag),
		})
		if err != nil {
			return err
		}
		if err := writePage(outDir, filepath.Join("tags", tc.Tag, "index.html"), htmlBytes); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) buildNotFound(ctx context.Context, tpl render.Renderer, outDir string) error {
	htmlBytes, err := tpl.RenderNotFound(ctx, render.NotFoundPage{Site: b.Cfg.Site, Path: "", Title: "Not Found"})
	if err != nil {
		return err
	}
	return writePage(outDir, "404.html", htmlBytes)
}

func (b *Builder) copyStaticAssets(outDir string) error {
	staticDir := filepath.Join(b.Cfg.Content.ThemeDir, b.Cfg.Content.Theme, "static")
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(staticDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staticDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(outDir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0o644)
	})
}

func writePage(outDir, rel string, data []byte) error {
	dst := filepath.Join(outDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
