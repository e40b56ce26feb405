package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashfolio/internal/render"
)

func writePost(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func newTestLibrary(t *testing.T) (*Library, string) {
	t.Helper()
	dir := t.TempDir()
	return NewLibrary(dir, render.NewMarkdownRenderer("")), dir
}

func TestListAllSortsNewestFirst(t *testing.T) {
	lib, dir := newTestLibrary(t)
	writePost(t, dir, "old.md", "---\ntitle: Old\ndate: \"2023-12-31\"\n---\nx")
	writePost(t, dir, "mid.md", "---\ntitle: Mid\ndate: \"2024-01-01\"\n---\nx")
	writePost(t, dir, "new.md", "---\ntitle: New\ndate: \"2024-06-15\"\n---\nx")

	metas, err := lib.ListAll()
	require.NoError(t, err)
	require.Len(t, metas, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{metas[0].Slug, metas[1].Slug, metas[2].Slug})
}

func TestListAllMissingDir(t *testing.T) {
	lib := NewLibrary(filepath.Join(t.TempDir(), "nope"), render.NewMarkdownRenderer(""))
	metas, err := lib.ListAll()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestListAllSkipsNonSourceFiles(t *testing.T) {
	lib, dir := newTestLibrary(t)
	writePost(t, dir, "a.md", "---\ntitle: A\ndate: \"2024-01-01\"\n---\nx")
	writePost(t, dir, "notes.txt", "ignore")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "drafts"), 0o755))

	metas, err := lib.ListAll()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "a", metas[0].Slug)
}

func TestListAllDuplicateSlug(t *testing.T) {
	lib, dir := newTestLibrary(t)
	writePost(t, dir, "a.md", "---\ntitle: MD\ndate: \"2024-01-01\"\n---\nx")
	writePost(t, dir, "a.mdx", "---\ntitle: MDX\ndate: \"2024-01-01\"\n---\nx")

	metas, err := lib.ListAll()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	// os.ReadDir 按文件名序枚举,a.md 先到
	assert.Equal(t, "MD", metas[0].Title)
}

func TestListAllBadFrontMatterFallsBack(t *testing.T) {
	lib, dir := newTestLibrary(t)
	writePost(t, dir, "broken.md", "---\ntitle: [unclosed\n---\nbody")

	metas, err := lib.ListAll()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "broken", metas[0].Title) // 回落到 slug
	assert.Equal(t, []string{}, metas[0].Tags)
}

func TestGetBySlug(t *testing.T) {
	lib, dir := newTestLibrary(t)
	writePost(t, dir, "hello.md", "---\ntitle: Hello\ndate: \"2025-04-01\"\ntags:\n  - go\n---\n## Intro\n\n![x](/x.png)\n")

	post, err := lib.GetBySlug("hello")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "Hello", post.Title)
	assert.Contains(t, post.ContentHTML, `loading="lazy"`)
	require.Len(t, post.Toc, 1)
	assert.Equal(t, "intro", post.Toc[0].ID)
	assert.Equal(t, 1, post.ReadingTimeMinutes)
}

func TestGetBySlugMissing(t *testing.T) {
	lib, _ := newTestLibrary(t)
	post, err := lib.GetBySlug("missing")
	require.NoError(t, err)
	assert.Nil(t, post)
}

func TestGetBySlugNoFrontMatter(t *testing.T) {
	lib, dir := newTestLibrary(t)
	writePost(t, dir, "plain.md", "# Just Markdown\n\ntext\n")

	post, err := lib.GetBySlug("plain")
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Equal(t, "plain", post.Title)
	assert.Contains(t, post.ContentHTML, "Just Markdown")
}

func TestGetByTag(t *testing.T) {
	lib, dir := newTestLibrary(t)
	writePost(t, dir, "a.md", "---\ntitle: A\ndate: \"2024-02-01\"\ntags: [go]\n---\nx")
	writePost(t, dir, "b.md", "---\ntitle: B\ndate: \"2024-01-01\"\ntags: [go, web]\n---\nx")
	writePost(t, dir, "c.md", "---\ntitle: C\ndate: \"2024-03-01\"\ntags: [web]\n---\nx")

	metas, err := lib.GetByTag("go")
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "a", metas[0].Slug)
	assert.Equal(t, "b", metas[1].Slug)
}

func TestListTags(t *testing.T) {
	lib, dir := newTestLibrary(t)
	writePost(t, dir, "a.md", "---\ndate: \"2024-02-01\"\ntags: [go, web]\n---\nx")
	writePost(t, dir, "b.md", "---\ndate: \"2024-01-01\"\ntags: [go]\n---\nx")

	tags, err := lib.ListTags()
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "go", tags[0].Tag)
	assert.Equal(t, 2, tags[0].Count)
	assert.Equal(t, "web", tags[1].Tag)
	assert.Equal(t, 1, tags[1].Count)
}

func TestRelated(t *testing.T) {
	lib, dir := newTestLibrary(t)
	writePost(t, dir, "self.md", "---\ndate: \"2024-05-01\"\ntags: [go, web]\n---\nx")
	writePost(t, dir, "both.md", "---\ndate: \"2024-01-01\"\ntags: [go, web]\n---\nx")
	writePost(t, dir, "one.md", "---\ndate: \"2024-06-01\"\ntags: [go]\n---\nx")
	writePost(t, dir, "none.md", "---\ndate: \"2024-07-01\"\ntags: [misc]\n---\nx")

	rel, err := lib.Related("self", []string{"go", "web"}, 3)
	require.NoError(t, err)
	require.Len(t, rel, 2)
	// 共享标签多的 both 靠前,同分按日期降序
	assert.Equal(t, "both", rel[0].Slug)
	assert.Equal(t, "one", rel[1].Slug)
}

func TestSearchIndexCarriesBody(t *testing.T) {
	lib, dir := newTestLibrary(t)
	writePost(t, dir, "a.md", "---\ntitle: A\ndate: \"2024-01-01\"\n---\nsearchable body here")

	metas, err := lib.SearchIndex()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Contains(t, metas[0].BodyText, "searchable body here")
}
