// Package reddit is a minimal Reddit API client covering what resub
// needs: log in as a script app, read the account's subscriptions and
// change them.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"resub/internal/apierr"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL  = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"

	pageSize = 100
)

type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

type Client struct {
	http    *http.Client
	base    *http.Client
	baseURL string
	user    string
}

type options struct {
	baseURL  string
	tokenURL string
	http     *http.Client
	timeout  time.Duration
}

type Option func(*options)

func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(u, "/") }
}

func WithTokenURL(u string) Option {
	return func(o *options) { o.tokenURL = u }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Login obtains an OAuth2 token with the password grant and confirms it
// by asking who the token belongs to. The returned client must be closed.
func Login(ctx context.Context, creds Credentials, opts ...Option) (*Client, error) {
	o := options{baseURL: DefaultBaseURL, tokenURL: DefaultTokenURL, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	base := o.http
	if base == nil {
		base = &http.Client{Timeout: o.timeout}
	}
	next := base.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	base = &http.Client{
		Timeout:   base.Timeout,
		Transport: &userAgentTransport{agent: creds.UserAgent, next: next},
	}

	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  o.tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, base)
	tok, err := conf.PasswordCredentialsToken(tokenCtx, creds.Username, creds.Password)
	if err != nil {
		return nil, fmt.Errorf("login as %s: %w", creds.Username, err)
	}

	c := &Client{
		http:    conf.Client(tokenCtx, tok),
		base:    base,
		baseURL: o.baseURL,
	}
	c.http.Timeout = base.Timeout

	user, err := c.Me(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("login as %s: %w", creds.Username, err)
	}
	c.user = user
	log.Debug().Str("user", user).Msg("logged in")
	return c, nil
}

// User is the account name Reddit reported at login.
func (c *Client) User() string {
	return c.user
}

func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}

func (c *Client) Me(ctx context.Context) (string, error) {
	var me struct {
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, "me", "", &me); err != nil {
		return "", err
	}
	if me.Name == "" {
		return "", errors.New("me: empty account name, is the app type \"script\"?")
	}
	return me.Name, nil
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				DisplayName string `json:"display_name"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Subscriptions pages through every subreddit the account subscribes to.
func (c *Client) Subscriptions(ctx context.Context) ([]string, error) {
	var names []string
	seen := map[string]bool{}
	after := ""

	for {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(pageSize))
		if after != "" {
			q.Set("after", after)
		}

		var page listing
		if err := c.do(ctx, http.MethodGet, "/subreddits/mine/subscriber?"+q.Encode(), nil, "list", "", &page); err != nil {
			return nil, err
		}
		for _, child := range page.Data.Children {
			if child.Data.DisplayName != "" {
				names = append(names, child.Data.DisplayName)
			}
		}
		log.Debug().Int("page", len(page.Data.Children)).Int("total", len(names)).Msg("fetched subscriptions")

		after = page.Data.After
		if after == "" || seen[after] {
			return names, nil
		}
		seen[after] = true
	}
}

func (c *Client) Subscribe(ctx context.Context, name string) error {
	return c.subscription(ctx, "sub", name)
}

func (c *Client) Unsubscribe(ctx context.Context, name string) error {
	return c.subscription(ctx, "unsub", name)
}

func (c *Client) subscription(ctx context.Context, action, name string) error {
	form := url.Values{}
	form.Set("action", action)
	form.Set("sr_name", name)
	if action == "sub" {
		form.Set("skip_initial_defaults", "true")
	}
	op := "subscribe"
	if action == "unsub" {
		op = "unsubscribe"
	}
	return c.do(ctx, http.MethodPost, "/api/subscribe", form, op, name, nil)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, op, subreddit string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apierr.Transient(op, subreddit, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return apierr.Transient(op, subreddit, err)
	}

	if err := checkStatus(resp.StatusCode, op, subreddit, data); err != nil {
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func checkStatus(status int, op, subreddit string, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	text := strings.TrimSpace(snippet(body))
	if text == "" {
		text = http.StatusText(status)
	}
	cause := errors.New(text)
	switch {
	case status == http.StatusNotFound:
		return apierr.NotFound(op, subreddit, cause).WithStatus(status)
	case status == http.StatusForbidden:
		return apierr.Forbidden(op, subreddit, cause).WithStatus(status)
	case status == http.StatusTooManyRequests, status >= 500:
		return apierr.Transient(op, subreddit, cause).WithStatus(status)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%s: unauthorized, the session may have expired: %w", op, cause)
	default:
		return fmt.Errorf("%s: unexpected status %d: %w", op, status, cause)
	}
}

func snippet(body []byte) string {
	const max = 200
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.agent == "" {
		return t.next.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(r)
}

func (t *userAgentTransport) CloseIdleConnections() {
	if ci, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}
