package render

import (
	"html/template"
	"time"

	"dashfolio/internal/domain/config"
	"dashfolio/internal/domain/content"
)

type HomePage struct {
	Site      config.SiteConfig
	Recent    []content.PostMeta
	PostCount int
	Tags      []content.TagCount
	Generated time.Time
	Title     string
}

type PostsPage struct {
	Site         config.SiteConfig
	Posts        []content.PostMeta
	AllTags      []content.TagCount
	Query        string
	SelectedTags []string
	Sort         string
	Page         int
	TotalPages   int
	Total        int
	Title        string
}

type PostPage struct {
	Site        config.SiteConfig
	Meta        content.PostMeta
	HTML        template.HTML
	Toc         []content.TocItem
	ReadingTime int
	Related     []content.PostMeta
	Title       string
}

type TagsPage struct {
	Site  config.SiteConfig
	Tags  []content.TagCount
	Total int
	Title string
}

type TagPage struct {
	Site  config.SiteConfig
	Tag   string
	Posts []content.PostMeta
	Title string
}

type NotFoundPage struct {
	Site  config.SiteConfig
	Path  string
	Title string
}
