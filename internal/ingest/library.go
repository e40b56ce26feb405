package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"dashfolio/internal/domain/content"
	"dashfolio/internal/render"
)

// 同一个 slug 认两种扩展名
var sourceExts = []string{".md", ".mdx"}

// Library is the collection index over the posts directory. Nothing is
// cached between calls: the content files stay the single source of truth
// and every read re-scans them.
type Library struct {
	dir string
	md  *render.MarkdownRenderer
}

func NewLibrary(dir string, md *render.MarkdownRenderer) *Library {
	return &Library{dir: dir, md: md}
}

func (l *Library) Dir() string { return l.dir }

// ListAll returns metadata for every post, newest first. Ties on the date
// string keep directory enumeration order. A missing posts directory is an
// empty collection, not an error.
func (l *Library) ListAll() ([]content.PostMeta, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan posts dir: %w", err)
	}

	seen := make(map[string]struct{})
	var metas []content.PostMeta
	for _, e := range entries {
		if e.IsDir() || !hasSourceExt(e.Name()) {
			continue
		}
		slug := slugFromFilename(e.Name())
		if _, ok := seen[slug]; ok {
			// a.md 和 a.mdx 并存时只认先枚举到的那个
			log.Debug().Str("slug", slug).Msg("duplicate slug, skipping")
			continue
		}
		seen[slug] = struct{}{}

		raw, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		fm, _, fmErr := ParseFrontMatter(raw)
		if fmErr != nil && fmErr != errNoFrontMatter {
			log.Warn().Str("file", e.Name()).Err(fmErr).Msg("bad front matter, using defaults")
			fm = FrontMatter{}
		}
		metas = append(metas, buildMeta(slug, fm))
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].Date > metas[j].Date
	})
	return metas, nil
}

// GetBySlug resolves one post and renders it. A slug with no matching file
// under either extension returns (nil, nil).
func (l *Library) GetBySlug(slug string) (*content.Post, error) {
	var raw []byte
	found := false
	for _, ext := range sourceExts {
		b, err := os.ReadFile(filepath.Join(l.dir, slug+ext))
		if err == nil {
			raw = b
			found = true
			break
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read post %s: %w", slug, err)
		}
	}
	if !found {
		return nil, nil
	}

	fm, body, fmErr := ParseFrontMatter(raw)
	if fmErr != nil {
		// 没有或解析不了 front matter：整个文件当正文
		fm = FrontMatter{}
		body = raw
	}

	res, err := l.md.Render(body)
	if err != nil {
		return nil, fmt.Errorf("render post %s: %w", slug, err)
	}
	htmlStr := render.LazyImages(string(res.HTML))

	return &content.Post{
		PostMeta:           buildMeta(slug, fm),
		ContentHTML:        htmlStr,
		Toc:                res.Toc,
		ReadingTimeMinutes: render.ReadingTime(htmlStr),
	}, nil
}

// GetByTag filters ListAll by exact tag membership.
func (l *Library) GetByTag(tag string) ([]content.PostMeta, error) {
	metas, err := l.ListAll()
	if err != nil {
		return nil, err
	}
	var out []content.PostMeta
	for _, m := range metas {
		if m.HasTag(tag) {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListTags aggregates tag counts over the whole collection, sorted by tag.
func (l *Library) ListTags() ([]content.TagCount, error) {
	metas, err := l.ListAll()
	if err != nil {
		return nil, err
	}
	return content.CountTags(metas), nil
}

func (l *Library) Count() (int, error) {
	metas, err := l.ListAll()
	if err != nil {
		return 0, err
	}
	return len(metas), nil
}

// Related ranks other posts by shared-tag count, then date, and returns up
// to n of them. Used for the "related posts" block on the post page.
func (l *Library) Related(slug string, tags []string, n int) ([]content.PostMeta, error) {
	metas, err := l.ListAll()
	if err != nil {
		return nil, err
	}
	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}

	type scored struct {
		meta  content.PostMeta
		share int
	}
	var cands []scored
	for _, m := range metas {
		if m.Slug == slug {
			continue
		}
		share := 0
		for _, t := range m.Tags {
			if _, ok := tagSet[t]; ok {
				share++
			}
		}
		if share > 0 {
			cands = append(cands, scored{meta: m, share: share})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].share != cands[j].share {
			return cands[i].share > cands[j].share
		}
		return cands[i].meta.Date > cands[j].meta.Date
	})
	if n > len(cands) {
		n = len(cands)
	}
	out := make([]content.PostMeta, 0, n)
	for _, c := range cands[:n] {
		out = append(out, c.meta)
	}
	return out, nil
}

// SearchIndex is ListAll plus the raw markdown body as search text, for
// full-text fuzzy matching.
func (l *Library) SearchIndex() ([]content.PostMeta, error) {
	metas, err := l.ListAll()
	if err != nil {
		return nil, err
	}
	for i := range metas {
		for _, ext := range sourceExts {
			raw, err := os.ReadFile(filepath.Join(l.dir, metas[i].Slug+ext))
			if err != nil {
				continue
			}
			_, body, fmErr := ParseFrontMatter(raw)
			if fmErr != nil {
				body = raw
			}
			metas[i].BodyText = string(body)
			break
		}
	}
	return metas, nil
}

func buildMeta(slug string, fm FrontMatter) content.PostMeta {
	m := content.PostMeta{
		Slug:    slug,
		Title:   fm.Title,
		Date:    fm.Date,
		Excerpt: fm.Excerpt,
		Tags:    fm.TagList(),
	}
	if strings.TrimSpace(m.Title) == "" {
		m.Title = slug
	}
	m.Normalize()
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return m
}

func hasSourceExt(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range sourceExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func slugFromFilename(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
