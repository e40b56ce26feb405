package content

import (
	"sort"
	"strings"
)

// PostMeta 是单篇文章的元数据，由扫描 content 目录时生成。
// Date 保留源文件里的字符串形式（ISO 风格，可按字典序排序）。
type PostMeta struct {
	Slug    string
	Title   string
	Date    string
	Excerpt string
	Tags    []string

	// 搜索用的纯文本正文，列表页不需要时为空
	BodyText string
}

type TocItem struct {
	ID    string
	Text  string
	Level int
}

// Post 在元数据之上加上渲染结果。每次请求按需构造，不做跨请求缓存。
type Post struct {
	PostMeta

	ContentHTML        string
	Toc                []TocItem
	ReadingTimeMinutes int
}

type TagCount struct {
	Tag   string
	Count int
}

func (m *PostMeta) Normalize() {
	m.Slug = strings.TrimSpace(m.Slug)
	m.Title = strings.TrimSpace(m.Title)
	m.Date = strings.TrimSpace(m.Date)
	m.Excerpt = strings.TrimSpace(m.Excerpt)
	m.Tags = normalizeTags(m.Tags)
}

func (m PostMeta) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func normalizeTags(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// CountTags 聚合一组文章的标签，按标签名字典序返回。
func CountTags(metas []PostMeta) []TagCount {
	counts := make(map[string]int)
	for _, m := range metas {
		for _, t := range m.Tags {
			counts[t]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for tag, c := range counts {
		out = append(out, TagCount{Tag: tag, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}
