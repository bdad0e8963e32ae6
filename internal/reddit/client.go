package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultAuthURL = "https://www.reddit.com/api/v1/access_token"
	defaultBaseURL = "https://oauth.reddit.com"
	webURL         = "https://www.reddit.com"
)

// ErrNotFound is returned when the platform answers 404 or 403 for a resource
var ErrNotFound = errors.New("reddit resource not found")

// Credentials identify the moderator account the bot acts as
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	UserAgent    string
}

// Client talks to the Reddit OAuth API on behalf of a moderator account
type Client struct {
	creds   Credentials
	client  *resty.Client
	authURL string
	baseURL string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// NewClient creates a Reddit client
func NewClient(creds Credentials) *Client {
	if creds.UserAgent == "" {
		creds.UserAgent = "modbot/1.0 (by /u/" + creds.Username + ")"
	}
	return &Client{
		creds:   creds,
		client:  resty.New().SetTimeout(30 * time.Second),
		authURL: defaultAuthURL,
		baseURL: defaultBaseURL,
	}
}

// Username is the account the client is logged in as
func (c *Client) Username() string {
	return c.creds.Username
}

// Authenticate fetches a fresh access token with the password grant
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	logrus.Infof("Logging in as %s", c.creds.Username)

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", c.creds.UserAgent).
		SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret).
		SetFormData(map[string]string{
			"grant_type": "password",
			"username":   c.creds.Username,
			"password":   c.creds.Password,
		}).
		Post(c.authURL)
	if err != nil {
		return fmt.Errorf("reddit authentication request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("reddit authentication returned status %d", resp.StatusCode())
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}
	if authResp.Error != "" || authResp.AccessToken == "" {
		return fmt.Errorf("reddit authentication failed: %s", authResp.Error)
	}

	c.accessToken = authResp.AccessToken
	// refresh a minute early
	c.expiresAt = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - time.Minute)
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" || time.Now().After(c.expiresAt) {
		if err := c.authenticateLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.accessToken, nil
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	return c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("User-Agent", c.creds.UserAgent), nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out interface{}) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}

	resp, err := req.SetQueryParams(query).Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s failed: %w", path, err)
	}
	if err := checkStatus(resp, path); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

type apiResponse struct {
	JSON struct {
		Errors [][]interface{} `json:"errors"`
		Data   struct {
			Things []struct {
				Data struct {
					Name string `json:"name"`
				} `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

func (c *Client) post(ctx context.Context, path string, form map[string]string) (*apiResponse, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}

	form["api_type"] = "json"
	resp, err := req.SetFormData(form).Post(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("POST %s failed: %w", path, err)
	}
	if err := checkStatus(resp, path); err != nil {
		return nil, err
	}

	var out apiResponse
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &out); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}
	if len(out.JSON.Errors) > 0 {
		return nil, fmt.Errorf("POST %s returned errors: %v", path, out.JSON.Errors)
	}
	return &out, nil
}

func checkStatus(resp *resty.Response, path string) error {
	switch resp.StatusCode() {
	case 200:
		return nil
	case 403, 404:
		return fmt.Errorf("%s: %w (status %d)", path, ErrNotFound, resp.StatusCode())
	}
	return fmt.Errorf("reddit API returned status %d for %s", resp.StatusCode(), path)
}

func subredditPath(community, suffix string) string {
	return "/r/" + url.PathEscape(community) + suffix
}

func absolutePermalink(permalink string) string {
	if permalink == "" || strings.HasPrefix(permalink, "http") {
		return permalink
	}
	return webURL + permalink
}
