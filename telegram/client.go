package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"

	"github.com/groupwarden/warden/util"
)

// Client is a minimal Bot API client: JSON method calls over HTTPS against
// api.telegram.org (or a compatible host).
type Client struct {
	// Client is an HTTP client to use. If not set, defaults to util.RobustHTTPClient().
	Client *http.Client
	// Host defaults to the public Bot API endpoint.
	Host  string
	Token string
	// Limiter throttles outbound API calls, if set.
	Limiter   *rate.Limiter
	UserAgent *string
}

var defaultHost = "https://api.telegram.org"

func NewClient(token string) *Client {
	return &Client{
		Client: util.RobustHTTPClient(),
		Host:   defaultHost,
		Token:  token,
	}
}

func (c *Client) getClient() *http.Client {
	if c.Client == nil {
		return util.RobustHTTPClient()
	}
	return c.Client
}

func (c *Client) getHost() string {
	if c.Host == "" {
		return defaultHost
	}
	return c.Host
}

// APIError is a non-ok response from the Bot API.
type APIError struct {
	Code        int    `json:"error_code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API error %d: %s", e.Code, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// Call invokes one Bot API method. params is marshaled as the JSON request
// body; a non-nil out receives the unmarshaled result payload.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshaling %s params: %w", method, err)
		}
		body = bytes.NewReader(b)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.getHost(), c.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.UserAgent != nil {
		req.Header.Set("User-Agent", *c.UserAgent)
	} else {
		req.Header.Set("User-Agent", "warden/"+versioninfo.Short())
	}

	resp, err := c.getClient().Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !apiResp.OK {
		return &APIError{Code: apiResp.ErrorCode, Description: apiResp.Description}
	}
	if out != nil {
		if err := json.Unmarshal(apiResp.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.Call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := struct {
		Offset         int64    `json:"offset,omitempty"`
		Timeout        int      `json:"timeout,omitempty"`
		AllowedUpdates []string `json:"allowed_updates,omitempty"`
	}{
		Offset:         offset,
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: []string{"message", "edited_message"},
	}
	var updates []Update
	if err := c.Call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) SetWebhook(ctx context.Context, url string) error {
	params := struct {
		URL string `json:"url"`
	}{URL: url}
	return c.Call(ctx, "setWebhook", params, nil)
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.Call(ctx, "deleteWebhook", nil, nil)
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	params := struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}{ChatID: chatID, Text: text}
	var msg Message
	if err := c.Call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	params := struct {
		ChatID    int64 `json:"chat_id"`
		MessageID int64 `json:"message_id"`
	}{ChatID: chatID, MessageID: messageID}
	return c.Call(ctx, "deleteMessage", params, nil)
}

func (c *Client) BanChatMember(ctx context.Context, chatID, userID int64) error {
	params := struct {
		ChatID int64 `json:"chat_id"`
		UserID int64 `json:"user_id"`
	}{ChatID: chatID, UserID: userID}
	return c.Call(ctx, "banChatMember", params, nil)
}

func (c *Client) RestrictChatMember(ctx context.Context, chatID, userID int64, perms ChatPermissions, until time.Time) error {
	params := struct {
		ChatID      int64           `json:"chat_id"`
		UserID      int64           `json:"user_id"`
		Permissions ChatPermissions `json:"permissions"`
		UntilDate   int64           `json:"until_date"`
	}{ChatID: chatID, UserID: userID, Permissions: perms, UntilDate: until.Unix()}
	return c.Call(ctx, "restrictChatMember", params, nil)
}

func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (*ChatMember, error) {
	params := struct {
		ChatID int64 `json:"chat_id"`
		UserID int64 `json:"user_id"`
	}{ChatID: chatID, UserID: userID}
	var m ChatMember
	if err := c.Call(ctx, "getChatMember", params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
