package config

import (
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	domainerr "dashfolio/internal/domain/errors"
)

type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Content   ContentConfig   `yaml:"content"`
	Serve     ServeConfig     `yaml:"serve"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	GitHub    GitHubConfig    `yaml:"github"`
}

type SiteConfig struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
	SiteURL     string `yaml:"site_url"`
	Language    string `yaml:"language"`
	Description string `yaml:"description"`
}

type ContentConfig struct {
	PostsDir  string `yaml:"posts_dir"`
	PublicDir string `yaml:"public_dir"`
	ThemeDir  string `yaml:"theme_dir"`
	Theme     string `yaml:"theme"`
	PageSize  int    `yaml:"page_size"`
	CodeStyle string `yaml:"code_style"`
}

type ServeConfig struct {
	Addr   string `yaml:"addr"`
	PVPath string `yaml:"pv_path"`
}

// AnalyticsConfig 是 GA4 + workload identity federation 的接入配置。
// 任一字段为空时 /api/pv 一律退回 dummy 数据。
type AnalyticsConfig struct {
	GA4PropertyID    string `yaml:"ga4_property_id"`
	GCPProjectNumber string `yaml:"gcp_project_number"`
	PoolID           string `yaml:"workload_identity_pool_id"`
	ProviderID       string `yaml:"workload_identity_provider_id"`
	ServiceAccount   string `yaml:"service_account_email"`
	// OIDC token 的获取地址从环境变量 OIDC_TOKEN_URL 读，不进配置文件
}

type GitHubConfig struct {
	Username string `yaml:"username"`
	// token 从环境变量 GITHUB_TOKEN 读
}

func Default() Config {
	return Config{
		Site: SiteConfig{
			Title:    "Dashboard Portfolio",
			SiteURL:  "http://localhost:8080",
			Language: "ja",
		},
		Content: ContentConfig{
			PostsDir:  "content/posts",
			PublicDir: "public",
			ThemeDir:  "themes",
			Theme:     "default",
			PageSize:  6,
			CodeStyle: "github",
		},
		Serve: ServeConfig{
			Addr:   ":8080",
			PVPath: ".dashfolio/pv.db",
		},
		Analytics: AnalyticsConfig{
			PoolID:     "portfolio-vercel",
			ProviderID: "portfolio-vercel",
		},
	}
}

func (c Config) Validate() error {
	var ve domainerr.ValidationError

	if strings.TrimSpace(c.Site.Title) == "" {
		ve.Add("site.title", "must not be empty")
	}
	if strings.TrimSpace(c.Site.SiteURL) == "" {
		ve.Add("site.site_url", "must not be empty")
	} else if !isValidAbsURL(c.Site.SiteURL) {
		ve.Add("site.site_url", "must be a valid absolute URL")
	}

	if strings.TrimSpace(c.Content.PostsDir) == "" {
		ve.Add("content.posts_dir", "must not be empty")
	}
	if strings.TrimSpace(c.Content.PublicDir) == "" {
		ve.Add("content.public_dir", "must not be empty")
	}
	if strings.TrimSpace(c.Content.ThemeDir) == "" {
		ve.Add("content.theme_dir", "must not be empty")
	}
	if strings.TrimSpace(c.Content.Theme) == "" {
		ve.Add("content.theme", "must not be empty")
	}
	if c.Content.PageSize <= 0 {
		ve.Add("content.page_size", "must be positive")
	}
	if strings.TrimSpace(c.Serve.Addr) == "" {
		ve.Add("serve.addr", "must not be empty")
	}

	if ve.HasAny() {
		return ve
	}
	return nil
}

// Configured reports whether the GA4 integration has enough settings to try
// a real fetch. Partial settings count as unconfigured, not as an error.
func (a AnalyticsConfig) Configured() bool {
	return strings.TrimSpace(a.GA4PropertyID) != "" &&
		strings.TrimSpace(a.GCPProjectNumber) != "" &&
		strings.TrimSpace(a.ServiceAccount) != ""
}

func isValidAbsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	// 直接 Unmarshal 到 cfg 上：文件中写到的字段覆盖默认值，其他字段保留 Default
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadOrDefault(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := cfg.Validate(); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
