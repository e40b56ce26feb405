package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerr "dashfolio/internal/domain/errors"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateCollectsFieldErrors(t *testing.T) {
	cfg := Default()
	cfg.Site.Title = ""
	cfg.Site.SiteURL = "not a url"
	cfg.Content.PageSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerr.ErrInvalid)

	var ve domainerr.ValidationError
	require.True(t, errors.As(err, &ve))
	fields := make([]string, 0, len(ve.Items))
	for _, item := range ve.Items {
		fields = append(fields, item.Field)
	}
	assert.Contains(t, fields, "site.title")
	assert.Contains(t, fields, "site.site_url")
	assert.Contains(t, fields, "content.page_size")
}

func TestValidateURLScheme(t *testing.T) {
	cfg := Default()
	cfg.Site.SiteURL = "ftp://example.com"
	assert.Error(t, cfg.Validate())

	cfg.Site.SiteURL = "https://example.com"
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"site:\n  title: \"My Site\"\ncontent:\n  page_size: 12\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "My Site", cfg.Site.Title)
	assert.Equal(t, 12, cfg.Content.PageSize)
	// 文件里没写的字段保留默认值
	assert.Equal(t, ":8080", cfg.Serve.Addr)
	assert.Equal(t, "content/posts", cfg.Content.PostsDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadInvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("site:\n  title: \"\"\n"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domainerr.ErrInvalid)
}

func TestAnalyticsConfigured(t *testing.T) {
	var a AnalyticsConfig
	assert.False(t, a.Configured())

	a = AnalyticsConfig{GA4PropertyID: "1", GCPProjectNumber: "2"}
	assert.False(t, a.Configured())

	a.ServiceAccount = "sa@example.iam.gserviceaccount.com"
	assert.True(t, a.Configured())
}
