// Package fetcher handles HTTP access to the retailer, including Cloudflare
// bypass, retries with backoff and cookie persistence.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"bamwatch/internal/storage"
)

// cookieMaxAge is how long persisted clearance cookies stay valid.
const cookieMaxAge = 23 * time.Hour

// Config holds the fetcher settings.
type Config struct {
	BaseURL       string
	Zipcode       string
	RadiusMiles   int
	Timeout       time.Duration
	RetryAttempts uint64
	// MinRequestGap spaces out upstream requests to avoid rate limiting.
	MinRequestGap time.Duration
}

// Client performs evasive HTTP requests against the retailer.
type Client struct {
	http    *resty.Client
	store   storage.Storage
	cfg     Config
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a Client. Cookies persisted by a previous run are restored
// lazily via RestoreCookies.
func New(cfg Config, store storage.Storage, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.booksamillion.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.MinRequestGap == 0 {
		cfg.MinRequestGap = 2 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	if jar, err := cookiejar.New(nil); err == nil {
		client.SetCookieJar(jar)
	}
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetTimeout(cfg.Timeout)

	return &Client{
		http:    client,
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.MinRequestGap), 1),
		log:     log,
	}
}

// HTTPClient exposes the underlying HTTP client (useful for testing).
func (c *Client) HTTPClient() *http.Client {
	return c.http.GetClient()
}

// RestoreCookies loads previously persisted cookies into the client, if
// they are still within their validity window.
func (c *Client) RestoreCookies(ctx context.Context) {
	domain := c.domain()
	cookies, err := c.store.LoadCookies(ctx, domain, cookieMaxAge)
	if err != nil {
		c.log.Warn("load cookies", "domain", domain, "error", err)
		return
	}
	if len(cookies) == 0 {
		return
	}
	restored := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		restored = append(restored, &http.Cookie{Name: name, Value: value, Domain: domain, Path: "/"})
	}
	c.http.SetCookies(restored)
	c.log.Info("restored cookies", "domain", domain, "count", len(restored))
}

// FetchBullseye retrieves the raw store-availability response for a PID.
func (c *Client) FetchBullseye(ctx context.Context, pid string) ([]byte, error) {
	q := url.Values{}
	q.Set("PostalCode", c.cfg.Zipcode)
	q.Set("Radius", strconv.Itoa(c.cfg.RadiusMiles))
	q.Set("action", "bullseye")
	q.Set("pid", pid)
	q.Set("code", "")
	q.Set("StartIndex", "0")
	q.Set("PageSize", "25")

	headers := map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"Referer":          c.cfg.BaseURL + "/p/" + pid,
	}
	return c.get(ctx, "/bullseye?"+q.Encode(), headers)
}

// FetchSearchPage retrieves a raw search results page.
func (c *Client) FetchSearchPage(ctx context.Context, pageURL string) ([]byte, error) {
	return c.get(ctx, pageURL, nil)
}

func (c *Client) get(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	backoff := retry.WithMaxRetries(c.cfg.RetryAttempts, retry.NewExponential(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req := c.http.R().SetContext(ctx)
		if headers != nil {
			req.SetHeaders(headers)
		}
		resp, err := req.Get(target)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("http get: %w", err))
		}
		if resp.StatusCode() == http.StatusForbidden || isChallenge(resp.Body()) {
			c.log.Warn("challenge response, refreshing cookies", "url", target, "status", resp.StatusCode())
			c.refreshCookies(ctx)
			return retry.RetryableError(fmt.Errorf("challenge response (status %d)", resp.StatusCode()))
		}
		if resp.StatusCode() != http.StatusOK {
			return retry.RetryableError(fmt.Errorf("unexpected status %d", resp.StatusCode()))
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	return body, nil
}

// refreshCookies hits the landing page through the bypass transport so the
// cookie jar picks up fresh clearance cookies, then persists them.
func (c *Client) refreshCookies(ctx context.Context) {
	resp, err := c.http.R().SetContext(ctx).Get("/")
	if err != nil {
		c.log.Warn("refresh cookies", "error", err)
		return
	}
	if resp.StatusCode() != http.StatusOK {
		c.log.Warn("refresh cookies", "status", resp.StatusCode())
		return
	}
	c.persistCookies(ctx)
}

func (c *Client) persistCookies(ctx context.Context) {
	jar := c.http.GetClient().Jar
	base, err := url.Parse(c.cfg.BaseURL)
	if jar == nil || err != nil {
		return
	}
	cookies := make(map[string]string)
	for _, ck := range jar.Cookies(base) {
		cookies[ck.Name] = ck.Value
	}
	if len(cookies) == 0 {
		return
	}
	if err := c.store.SaveCookies(ctx, c.domain(), cookies, time.Now()); err != nil {
		c.log.Warn("save cookies", "error", err)
	}
}

func (c *Client) domain() string {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return c.cfg.BaseURL
	}
	return u.Hostname()
}

func isChallenge(body []byte) bool {
	return bytes.Contains(bytes.ToLower(body), []byte("cf-challenge")) ||
		bytes.Contains(bytes.ToLower(body), []byte("checking your browser"))
}
