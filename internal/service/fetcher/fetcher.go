package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Options select how a single fetch is performed.
type Options struct {
	Timeout    time.Duration
	Render     bool
	UseSession bool
}

// Response is the subset of the HTTP response the checker classifies.
type Response struct {
	Body   string
	Status int
	Header http.Header
}

// Client fetches candidate pages. Plain fetches go through resty with a
// cloudflare-bypass transport; render fetches go through an external
// headless render service.
type Client struct {
	plain     *resty.Client
	session   *resty.Client
	renderURL string
	userAgent string
}

// Config holds fetcher construction parameters.
type Config struct {
	RenderURL string
	UserAgent string
}

// New creates a fetcher client.
func New(cfg Config) *Client {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	plain := newRestyClient(ua, nil)

	// The session client keeps cookies across fetches for retailers that
	// gate product pages behind a session cookie.
	jar, _ := cookiejar.New(nil)
	session := newRestyClient(ua, jar)

	return &Client{
		plain:     plain,
		session:   session,
		renderURL: cfg.RenderURL,
		userAgent: ua,
	}
}

func newRestyClient(userAgent string, jar http.CookieJar) *resty.Client {
	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", userAgent)
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("accept-language", "en-US,en;q=0.9")
	if jar != nil {
		client.SetCookieJar(jar)
	}
	return client
}

// Get fetches url. Non-2xx statuses are returned as a Response, not an
// error; only transport-level failures error out.
func (c *Client) Get(ctx context.Context, url string, opts Options) (*Response, error) {
	if opts.Render {
		return c.renderGet(ctx, url, opts)
	}

	client := c.plain
	if opts.UseSession {
		client = c.session
	}

	req := client.R().SetContext(ctx)
	if opts.Timeout > 0 {
		reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		req.SetContext(reqCtx)
	}

	resp, err := req.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	return &Response{
		Body:   string(resp.Body()),
		Status: resp.StatusCode(),
		Header: resp.Header(),
	}, nil
}

type renderRequest struct {
	URL       string `json:"url"`
	UserAgent string `json:"user_agent,omitempty"`
	WaitMS    int    `json:"wait_ms,omitempty"`
}

type renderResponse struct {
	HTML   string `json:"html"`
	Status int    `json:"status"`
}

// renderGet asks the headless render service to load the page with a
// full browser and return the settled DOM.
func (c *Client) renderGet(ctx context.Context, url string, opts Options) (*Response, error) {
	if c.renderURL == "" {
		return nil, fmt.Errorf("render fetch requested but no render service configured")
	}

	reqCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var rr renderResponse
	resp, err := c.plain.R().
		SetContext(reqCtx).
		SetHeader("content-type", "application/json").
		SetBody(renderRequest{URL: url, UserAgent: c.userAgent, WaitMS: 1500}).
		SetResult(&rr).
		Post(c.renderURL)
	if err != nil {
		return nil, fmt.Errorf("render fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("render service returned %d for %s", resp.StatusCode(), url)
	}

	status := rr.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{
		Body:   rr.HTML,
		Status: status,
		Header: resp.Header(),
	}, nil
}
