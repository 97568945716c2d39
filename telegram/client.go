// Package telegram is a thin Bot API client covering the methods this bot
// uses. It exposes Telegram's recoverable rejections as typed predicates so
// callers can distinguish a benign "message is not modified" from a real
// failure.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Client talks to the Telegram Bot API over HTTPS.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client instance.
type Option func(*Client)

// WithHTTPClient assigns a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL changes the API base URL. Primarily intended for testing.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = base
		}
	}
}

// NewClient constructs a Bot API client for the given token.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("telegram: bot token must not be empty")
	}

	client := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// APIError is a Bot API rejection (ok=false) carrying Telegram's description.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: API error %d: %s", e.Code, e.Description)
}

// apiErrContains reports whether the API error text behind err contains sub,
// case-insensitively. Telegram only identifies these conditions by prose.
func apiErrContains(err error, sub string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Description), sub)
}

// IsNotModified reports whether err is Telegram telling us an edit would not
// change the message. Callers treat this as success.
func IsNotModified(err error) bool {
	return apiErrContains(err, "message is not modified")
}

// IsUnparsable reports whether err means the text is malformed for the active
// parse mode. Callers retry exactly once with formatting disabled.
func IsUnparsable(err error) bool {
	return apiErrContains(err, "can't parse entities")
}

// call posts one Bot API method and decodes the response envelope into out
// when out is non-nil.
func (c *Client) call(ctx context.Context, method string, values url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("telegram: create %s request: %w", method, err)
	}
	req.URL.RawQuery = values.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s call failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("telegram: decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram: %s: %w", method, &APIError{
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		})
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetUpdates long-polls for new updates, respecting offset.
func (c *Client) GetUpdates(ctx context.Context, offset, timeout int) ([]Update, error) {
	values := url.Values{}
	values.Set("offset", strconv.Itoa(offset))
	values.Set("timeout", strconv.Itoa(timeout))

	var updates []Update
	if err := c.call(ctx, "getUpdates", values, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	if err := c.call(ctx, "getMe", url.Values{}, &me); err != nil {
		return User{}, err
	}
	return me, nil
}

func messageValues(chatID int64, threadID int, markup *InlineKeyboardMarkup, parseMode string) (url.Values, error) {
	values := url.Values{}
	values.Set("chat_id", strconv.FormatInt(chatID, 10))
	if threadID != 0 {
		values.Set("message_thread_id", strconv.Itoa(threadID))
	}
	if parseMode != "" {
		values.Set("parse_mode", parseMode)
	}
	if markup != nil && len(markup.InlineKeyboard) > 0 {
		encoded, err := json.Marshal(markup)
		if err != nil {
			return nil, fmt.Errorf("telegram: marshal reply markup: %w", err)
		}
		values.Set("reply_markup", string(encoded))
	}
	return values, nil
}

// SendText posts a new text message.
func (c *Client) SendText(ctx context.Context, chatID int64, threadID int, text string, markup *InlineKeyboardMarkup, parseMode string) error {
	values, err := messageValues(chatID, threadID, markup, parseMode)
	if err != nil {
		return err
	}
	values.Set("text", text)
	return c.call(ctx, "sendMessage", values, nil)
}

// SendPhoto posts a new photo message. The photo argument is either an HTTP
// URL or a Telegram file id.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, threadID int, photo, caption string, markup *InlineKeyboardMarkup, parseMode string) error {
	values, err := messageValues(chatID, threadID, markup, parseMode)
	if err != nil {
		return err
	}
	values.Set("photo", photo)
	values.Set("caption", caption)
	return c.call(ctx, "sendPhoto", values, nil)
}

// EditText replaces the text of a previously sent text message.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string, markup *InlineKeyboardMarkup, parseMode string) error {
	values, err := messageValues(chatID, 0, markup, parseMode)
	if err != nil {
		return err
	}
	values.Set("message_id", strconv.Itoa(messageID))
	values.Set("text", text)
	return c.call(ctx, "editMessageText", values, nil)
}

// EditCaption replaces the caption of a previously sent photo message.
func (c *Client) EditCaption(ctx context.Context, chatID int64, messageID int, caption string, markup *InlineKeyboardMarkup, parseMode string) error {
	values, err := messageValues(chatID, 0, markup, parseMode)
	if err != nil {
		return err
	}
	values.Set("message_id", strconv.Itoa(messageID))
	values.Set("caption", caption)
	return c.call(ctx, "editMessageCaption", values, nil)
}

// AnswerCallback acknowledges a button press, optionally with a toast or an
// alert popup.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	values := url.Values{}
	values.Set("callback_query_id", callbackID)
	if text != "" {
		values.Set("text", text)
	}
	if alert {
		values.Set("show_alert", "true")
	}
	return c.call(ctx, "answerCallbackQuery", values, nil)
}

// GetChat fetches live chat metadata.
func (c *Client) GetChat(ctx context.Context, chatID int64) (Chat, error) {
	values := url.Values{}
	values.Set("chat_id", strconv.FormatInt(chatID, 10))

	var chat Chat
	if err := c.call(ctx, "getChat", values, &chat); err != nil {
		return Chat{}, err
	}
	return chat, nil
}

// GetChatMemberCount returns the chat's current member count.
func (c *Client) GetChatMemberCount(ctx context.Context, chatID int64) (int, error) {
	values := url.Values{}
	values.Set("chat_id", strconv.FormatInt(chatID, 10))

	var count int
	if err := c.call(ctx, "getChatMemberCount", values, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetChatMember returns one user's membership record in a chat.
func (c *Client) GetChatMember(ctx context.Context, chatID, userID int64) (ChatMember, error) {
	values := url.Values{}
	values.Set("chat_id", strconv.FormatInt(chatID, 10))
	values.Set("user_id", strconv.FormatInt(userID, 10))

	var member ChatMember
	if err := c.call(ctx, "getChatMember", values, &member); err != nil {
		return ChatMember{}, err
	}
	return member, nil
}
