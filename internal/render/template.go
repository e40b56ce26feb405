package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"path/filepath"

	"dashfolio/internal/domain/content"
)

type Renderer interface {
	RenderHome(ctx context.Context, page HomePage) ([]byte, error)
	RenderPosts(ctx context.Context, page PostsPage) ([]byte, error)
	RenderPost(ctx context.Context, page PostPage) ([]byte, error)
	RenderTags(ctx context.Context, page TagsPage) ([]byte, error)
	RenderTag(ctx context.Context, page TagPage) ([]byte, error)
	RenderNotFound(ctx context.Context, page NotFoundPage) ([]byte, error)
}

type TemplateRenderer struct {
	tpl *template.Template
}

func NewTemplateRenderer(themeDir, themeName string) (*TemplateRenderer, error) {
	dir := filepath.Join(themeDir, themeName, "templates")
	if err := CheckThemeTemplates(dir); err != nil {
		return nil, fmt.Errorf("theme %s: %w", themeName, err)
	}
	tpl, err := template.New("").Funcs(templateFuncs()).ParseGlob(filepath.Join(dir, "*.tmpl"))
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{tpl: tpl}, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"postURL": func(m content.PostMeta) string {
			return "/posts/" + url.PathEscape(m.Slug)
		},
		"tagURL": func(tag string) string {
			return "/tags/" + url.PathEscape(tag)
		},
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
	}
}

func (r *TemplateRenderer) RenderHome(ctx context.Context, page HomePage) ([]byte, error) {
	return r.exec("home.tmpl", page)
}

func (r *TemplateRenderer) RenderPosts(ctx context.Context, page PostsPage) ([]byte, error) {
	return r.exec("posts.tmpl", page)
}

func (r *TemplateRenderer) RenderPost(ctx context.Context, page PostPage) ([]byte, error) {
	return r.exec("post.tmpl", page)
}

func (r *TemplateRenderer) RenderTags(ctx context.Context, page TagsPage) ([]byte, error) {
	return r.exec("tags.tmpl", page)
}

func (r *TemplateRenderer) RenderTag(ctx context.Context, page TagPage) ([]byte, error) {
	return r.exec("tag.tmpl", page)
}

func (r *TemplateRenderer) RenderNotFound(ctx context.Context, page NotFoundPage) ([]byte, error) {
	return r.exec("404.tmpl", page)
}

func (r *TemplateRenderer) exec(name string, data interface{}) ([]byte, error) {
	t := r.tpl.Lookup(name)
	if t == nil {
		return nil, fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func CheckThemeTemplates(themeDir string) error {
	required := []string{
		"home.tmpl",
		"posts.tmpl",
		"post.tmpl",
		"tags.tmpl",
		"tag.tmpl",
		"404.tmpl",
	}
	for _, name := range required {
		if _, err := os.Stat(filepath.Join(themeDir, name)); err != nil {
			return fmt.Errorf("missing template: %s", name)
		}
	}
	return nil
}
