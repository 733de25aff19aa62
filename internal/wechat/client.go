package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tourze/wechat-fans-service/internal/domain"
)

// DefaultBaseURL is the production WeChat API endpoint.
const DefaultBaseURL = "https://api.weixin.qq.com"

// tokenSafetyMargin is how long before the reported expiry a cached
// access token is considered stale.
const tokenSafetyMargin = 5 * time.Minute

// Client calls the WeChat official-account API on behalf of mirrored
// accounts. Access-token refresh and expiry are handled here; callers
// never see credentials.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	tokens map[string]*cachedToken // account id → token
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// NewClient creates a WeChat API client. baseURL is overridable for tests.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     make(map[string]*cachedToken),
	}
}

type tokenResponse struct {
	Errcode     int    `json:"errcode"`
	Errmsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a valid token for the account, refreshing if the
// cached one is missing or about to expire.
func (c *Client) accessToken(ctx context.Context, account *domain.Account) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[account.ID]
	if ok && time.Now().Before(cached.expiresAt) {
		token := cached.value
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", account.AppID)
	q.Set("secret", account.AppSecret)

	var resp tokenResponse
	if err := c.get(ctx, "/cgi-bin/token", q, &resp); err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	if resp.Errcode != 0 {
		return "", &APIError{Code: resp.Errcode, Message: resp.Errmsg}
	}
	if resp.AccessToken == "" {
		return "", ErrMalformedResponse
	}

	expiresAt := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).Add(-tokenSafetyMargin)

	c.mu.Lock()
	c.tokens[account.ID] = &cachedToken{value: resp.AccessToken, expiresAt: expiresAt}
	c.mu.Unlock()

	return resp.AccessToken, nil
}

// InvalidateToken drops the cached token for an account, forcing a
// refresh on the next call.
func (c *Client) InvalidateToken(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, accountID)
}

// GetFollowers fetches one page of the follower openid list. An empty
// cursor requests the first page.
func (c *Client) GetFollowers(ctx context.Context, account *domain.Account, cursor string) (*FollowerPage, error) {
	token, err := c.accessToken(ctx, account)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("access_token", token)
	if cursor != "" {
		q.Set("next_openid", cursor)
	}

	var resp listResponse
	if err := c.get(ctx, "/cgi-bin/user/get", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch followers page: %w", err)
	}
	if resp.Errcode != 0 {
		return nil, &APIError{Code: resp.Errcode, Message: resp.Errmsg}
	}
	return resp.toPage(), nil
}

// GetBlacklist fetches one page of the blacklist openid list. An empty
// cursor requests the first page.
func (c *Client) GetBlacklist(ctx context.Context, account *domain.Account, cursor string) (*FollowerPage, error) {
	token, err := c.accessToken(ctx, account)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("access_token", token)

	body := map[string]interface{}{}
	if cursor != "" {
		body["begin_openid"] = cursor
	}

	var resp listResponse
	if err := c.post(ctx, "/cgi-bin/tags/members/getblacklist", q, body, &resp); err != nil {
		return nil, fmt.Errorf("fetch blacklist page: %w", err)
	}
	if resp.Errcode != 0 {
		return nil, &APIError{Code: resp.Errcode, Message: resp.Errmsg}
	}
	return resp.toPage(), nil
}

type tagsResponse struct {
	Errcode int       `json:"errcode"`
	Errmsg  string    `json:"errmsg"`
	Tags    []TagInfo `json:"tags"`
}

// GetTags fetches the complete tag set of the account (not paginated).
func (c *Client) GetTags(ctx context.Context, account *domain.Account) ([]TagInfo, error) {
	token, err := c.accessToken(ctx, account)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("access_token", token)

	raw := struct {
		Errcode int             `json:"errcode"`
		Errmsg  string          `json:"errmsg"`
		Tags    json.RawMessage `json:"tags"`
	}{}
	if err := c.get(ctx, "/cgi-bin/tags/get", q, &raw); err != nil {
		return nil, fmt.Errorf("fetch tags: %w", err)
	}
	if raw.Errcode != 0 {
		return nil, &APIError{Code: raw.Errcode, Message: raw.Errmsg}
	}
	if raw.Tags == nil {
		return nil, ErrMalformedResponse
	}

	var tags []TagInfo
	if err := json.Unmarshal(raw.Tags, &tags); err != nil {
		return nil, ErrMalformedResponse
	}
	return tags, nil
}

type batchUserInfoResponse struct {
	Errcode      int             `json:"errcode"`
	Errmsg       string          `json:"errmsg"`
	UserInfoList json.RawMessage `json:"user_info_list"`
}

// BatchGetUserInfo fetches profile details for up to 100 openids.
func (c *Client) BatchGetUserInfo(ctx context.Context, account *domain.Account, openids []string) ([]UserInfo, error) {
	token, err := c.accessToken(ctx, account)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("access_token", token)

	userList := make([]map[string]string, 0, len(openids))
	for _, openid := range openids {
		userList = append(userList, map[string]string{
			"openid": openid,
			"lang":   "zh_CN",
		})
	}

	var resp batchUserInfoResponse
	err = c.post(ctx, "/cgi-bin/user/info/batchget", q,
		map[string]interface{}{"user_list": userList}, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch user info batch: %w", err)
	}
	if resp.Errcode != 0 {
		return nil, &APIError{Code: resp.Errcode, Message: resp.Errmsg}
	}
	if resp.UserInfoList == nil {
		return nil, ErrMalformedResponse
	}

	var infos []UserInfo
	if err := json.Unmarshal(resp.UserInfoList, &infos); err != nil {
		return nil, ErrMalformedResponse
	}
	return infos, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
