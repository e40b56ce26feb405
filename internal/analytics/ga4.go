package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"dashfolio/internal/cache"
	"dashfolio/internal/domain/config"
	"dashfolio/internal/pv"
)

// 数据来源标记，前端靠它区分真实数据和占位数据
const (
	SourceGA4      = "ga4"
	SourceCache    = "cache"
	SourceDummy    = "dummy"
	SourceFallback = "fallback"
)

const cacheTTL = time.Hour

type WeekReport struct {
	Data    []pv.DayCount `json:"data"`
	TotalPV int           `json:"totalPV"`
	Source  string        `json:"source"`
	Message string        `json:"message,omitempty"`
}

// Client fetches last-week page views from the GA4 Data API using keyless
// workload-identity federation: platform OIDC token -> STS exchange ->
// service-account impersonation -> runReport. One shot per refresh, result
// held in an injected TTL cache.
type Client struct {
	cfg  config.AnalyticsConfig
	http *http.Client

	// 测试时指向 httptest，正式环境用默认值
	OIDCTokenURL string
	STSBaseURL   string
	IAMBaseURL   string
	GA4BaseURL   string

	cache *cache.Cache[WeekReport]
	now   func() time.Time
}

func NewClient(cfg config.AnalyticsConfig) *Client {
	return &Client{
		cfg:          cfg,
		http:         &http.Client{Timeout: 10 * time.Second},
		OIDCTokenURL: os.Getenv("OIDC_TOKEN_URL"),
		STSBaseURL:   "https://sts.googleapis.com",
		IAMBaseURL:   "https://iamcredentials.googleapis.com",
		GA4BaseURL:   "https://analyticsdata.googleapis.com",
		cache:        cache.New[WeekReport](cacheTTL),
		now:          time.Now,
	}
}

// Week never fails: missing configuration, auth errors and upstream
// failures all collapse into placeholder data, tagged by Source.
func (c *Client) Week(ctx context.Context) WeekReport {
	if !c.cfg.Configured() {
		return c.dummy(SourceDummy, "analytics not configured")
	}
	if rep, ok := c.cache.Get(); ok {
		rep.Source = SourceCache
		return rep
	}

	data, err := c.fetchWeek(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("ga4 fetch failed, serving fallback data")
		return c.dummy(SourceFallback, err.Error())
	}

	rep := WeekReport{
		Data:    data,
		TotalPV: pv.Total(data),
		Source:  SourceGA4,
	}
	c.cache.Put(rep)
	return rep
}

func (c *Client) dummy(source, msg string) WeekReport {
	data := pv.DummyWeek(c.now())
	return WeekReport{
		Data:    data,
		TotalPV: pv.Total(data),
		Source:  source,
		Message: msg,
	}
}

func (c *Client) fetchWeek(ctx context.Context) ([]pv.DayCount, error) {
	oidcToken, err := c.platformToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("oidc token: %w", err)
	}
	stsToken, err := c.exchangeToken(ctx, oidcToken)
	if err != nil {
		return nil, fmt.Errorf("sts exchange: %w", err)
	}
	saToken, err := c.impersonate(ctx, stsToken)
	if err != nil {
		return nil, fmt.Errorf("impersonate: %w", err)
	}
	return c.runReport(ctx, saToken)
}

// platformToken 拿部署平台签发的 OIDC token
func (c *Client) platformToken(ctx context.Context) (string, error) {
	if c.OIDCTokenURL == "" {
		return "", fmt.Errorf("OIDC_TOKEN_URL is not set")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.OIDCTokenURL, nil)
	if err != nil {
		return "", err
	}
	var body struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := c.doJSON(req, &body); err != nil {
		return "", err
	}
	token := body.Token
	if token == "" {
		token = body.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("no token in OIDC response")
	}
	return token, nil
}

// exchangeToken 用 OIDC token 到 STS 换联邦访问令牌
func (c *Client) exchangeToken(ctx context.Context, oidcToken string) (string, error) {
	audience := fmt.Sprintf(
		"//iam.googleapis.com/projects/%s/locations/global/workloadIdentityPools/%s/providers/%s",
		c.cfg.GCPProjectNumber, c.cfg.PoolID, c.cfg.ProviderID,
	)
	form := url.Values{
		"audience":             {audience},
		"grant_type":           {"urn:ietf:params:oauth:grant-type:token-exchange"},
		"requested_token_type": {"urn:ietf:params:oauth:token-type:access_token"},
		"subject_token_type":   {"urn:ietf:params:oauth:token-type:jwt"},
		"subject_token":        {oidcToken},
		"scope":                {"https://www.googleapis.com/auth/cloud-platform"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.STSBaseURL+"/v1/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.doJSON(req, &body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("no access token in STS response")
	}
	return body.AccessToken, nil
}

// impersonate 用联邦令牌冒充服务账号，拿 analytics 只读权限的访问令牌
func (c *Client) impersonate(ctx context.Context, stsToken string) (string, error) {
	u := fmt.Sprintf("%s/v1/projects/-/serviceAccounts/%s:generateAccessToken",
		c.IAMBaseURL, c.cfg.ServiceAccount)
	payload, _ := json.Marshal(map[string]any{
		"scope": []string{"https://www.googleapis.com/auth/analytics.readonly"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+stsToken)

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.doJSON(req, &body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("no access token in impersonation response")
	}
	return body.AccessToken, nil
}

func (c *Client) runReport(ctx context.Context, token string) ([]pv.DayCount, error) {
	u := fmt.Sprintf("%s/v1beta/properties/%s:runReport", c.GA4BaseURL, c.cfg.GA4PropertyID)
	payload, _ := json.Marshal(map[string]any{
		"dateRanges": []map[string]string{{"startDate": "7daysAgo", "endDate": "today"}},
		"dimensions": []map[string]string{{"name": "date"}},
		"metrics":    []map[string]string{{"name": "screenPageViews"}},
		"orderBys":   []map[string]any{{"dimension": map[string]string{"dimensionName": "date"}}},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	var body struct {
		Rows []struct {
			DimensionValues []struct {
				Value string `json:"value"`
			} `json:"dimensionValues"`
			MetricValues []struct {
				Value string `json:"value"`
			} `json:"metricValues"`
		} `json:"rows"`
	}
	if err := c.doJSON(req, &body); err != nil {
		return nil, err
	}

	out := make([]pv.DayCount, 0, len(body.Rows))
	for _, row := range body.Rows {
		if len(row.DimensionValues) == 0 || len(row.MetricValues) == 0 {
			continue
		}
		out = append(out, pv.DayCount{
			Date: formatReportDate(row.DimensionValues[0].Value),
			PV:   atoiOrZero(row.MetricValues[0].Value),
		})
	}
	return out, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", req.URL.Path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GA4 的日期维度是 YYYYMMDD，显示用 MM/DD
func formatReportDate(s string) string {
	if len(s) == 8 {
		return s[4:6] + "/" + s[6:8]
	}
	return s
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
