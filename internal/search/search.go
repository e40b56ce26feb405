package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"dashfolio/internal/domain/content"
)

type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

const DefaultPageSize = 6

// 和 Fuse.js 的 threshold: 0.3 对齐：归一化编辑距离超过它就不算命中
const maxNormalizedDistance = 0.3

// Searcher runs the posts-page pipeline over an in-memory collection:
// fuzzy query, tag AND-filter, date sort, fixed-size pagination. State
// changes to query, tags or sort reset the page to 1; the page is clamped
// whenever the filtered set shrinks under it.
type Searcher struct {
	posts    []content.PostMeta
	pageSize int

	query    string
	selected map[string]struct{}
	order    SortOrder
	page     int
}

type Result struct {
	Posts      []content.PostMeta // current page
	Total      int                // filtered set size
	Page       int
	TotalPages int
}

func NewSearcher(posts []content.PostMeta, pageSize int) *Searcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Searcher{
		posts:    posts,
		pageSize: pageSize,
		selected: make(map[string]struct{}),
		order:    SortNewest,
		page:     1,
	}
}

func (s *Searcher) SetQuery(q string) {
	q = strings.TrimSpace(q)
	if q == s.query {
		return
	}
	s.query = q
	s.page = 1
}

func (s *Searcher) ToggleTag(tag string) {
	if _, ok := s.selected[tag]; ok {
		delete(s.selected, tag)
	} else {
		s.selected[tag] = struct{}{}
	}
	s.page = 1
}

func (s *Searcher) SetTags(tags []string) {
	s.selected = make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			s.selected[t] = struct{}{}
		}
	}
	s.page = 1
}

func (s *Searcher) SetSort(order SortOrder) {
	if order != SortOldest {
		order = SortNewest
	}
	if order == s.order {
		return
	}
	s.order = order
	s.page = 1
}

func (s *Searcher) SetPage(p int) {
	if p < 1 {
		p = 1
	}
	s.page = p
}

func (s *Searcher) SelectedTags() []string {
	out := make([]string, 0, len(s.selected))
	for t := range s.selected {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Searcher) Query() string    { return s.query }
func (s *Searcher) Order() SortOrder { return s.order }

// Results derives the current page. Pipeline order matters: query first,
// then tags, then sort, then slice.
func (s *Searcher) Results() Result {
	filtered := make([]content.PostMeta, 0, len(s.posts))
	for _, m := range s.posts {
		if s.query != "" && !matchPost(s.query, m) {
			continue
		}
		if !hasAllTags(m, s.selected) {
			continue
		}
		filtered = append(filtered, m)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if s.order == SortOldest {
			return filtered[i].Date < filtered[j].Date
		}
		return filtered[i].Date > filtered[j].Date
	})

	totalPages := (len(filtered) + s.pageSize - 1) / s.pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	page := s.page
	if page > totalPages {
		page = totalPages
	}

	lo := (page - 1) * s.pageSize
	hi := lo + s.pageSize
	if lo > len(filtered) {
		lo = len(filtered)
	}
	if hi > len(filtered) {
		hi = len(filtered)
	}

	return Result{
		Posts:      filtered[lo:hi],
		Total:      len(filtered),
		Page:       page,
		TotalPages: totalPages,
	}
}

// matchPost 对标题、摘要、标签、正文逐个试，命中任意一个字段即可。
func matchPost(query string, m content.PostMeta) bool {
	if matchField(query, m.Title) || matchField(query, m.Excerpt) {
		return true
	}
	for _, t := range m.Tags {
		if matchField(query, t) {
			return true
		}
	}
	if m.BodyText != "" && matchField(query, m.BodyText) {
		return true
	}
	return false
}

func matchField(query, field string) bool {
	if field == "" {
		return false
	}
	q := strings.ToLower(query)
	f := strings.ToLower(field)

	// 子序列命中（等价于容错的子串查找）
	if fuzzy.MatchNormalizedFold(q, f) {
		return true
	}

	// 再按词试编辑距离，容小的拼写错误
	for _, tok := range strings.Fields(f) {
		if normalizedDistance(q, tok) <= maxNormalizedDistance {
			return true
		}
	}
	return false
}

func normalizedDistance(a, b string) float64 {
	d := fuzzy.LevenshteinDistance(a, b)
	la := len([]rune(a))
	lb := len([]rune(b))
	max := la
	if lb > max {
		max = lb
	}
	if max == 0 {
		return 0
	}
	return float64(d) / float64(max)
}

func hasAllTags(m content.PostMeta, selected map[string]struct{}) bool {
	for t := range selected {
		if !m.HasTag(t) {
			return false
		}
	}
	return true
}
