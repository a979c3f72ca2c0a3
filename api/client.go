// Package api is the HTTP client for the messenger server's REST surface.
// It owns no domain logic: it moves JSON and reports transport failures.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/post-kserks/messenger-client/models"
)

// DefaultRequestTimeout bounds each REST call.
const DefaultRequestTimeout = 30 * time.Second

var (
	// ErrUnexpectedStatus indicates a non-2xx response.
	ErrUnexpectedStatus = errors.New("api: unexpected response status")
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("api: not found")
)

// Client talks to one messenger server on behalf of one authenticated user.
// Session issuance is external; the bearer token is supplied by the caller.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a REST client for the given server base URL and token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
	}
}

// SendMessageRequest is the outbound message payload. Encrypted sends carry
// one envelope per non-sender participant; the server stores the recipient's
// own envelope and fans the rest out.
type SendMessageRequest struct {
	ChatID      int               `json:"chat_id"`
	Text        string            `json:"text,omitempty"`
	IsEncrypted bool              `json:"is_encrypted"`
	Envelopes   []models.Envelope `json:"envelopes,omitempty"`
}

// FetchChats returns the user's chat listing with last-activity fields.
func (c *Client) FetchChats(ctx context.Context) ([]models.ChatSummary, error) {
	body, err := c.get(ctx, "/api/chats")
	if err != nil {
		return nil, err
	}

	// The server has returned both a bare array and a {success, chats}
	// wrapper across versions; accept either.
	var chats []models.ChatSummary
	if err := json.Unmarshal(body, &chats); err == nil {
		return chats, nil
	}
	var wrapped struct {
		Success bool                 `json:"success"`
		Chats   []models.ChatSummary `json:"chats"`
		Error   string               `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode chats response: %w", err)
	}
	if !wrapped.Success {
		return nil, fmt.Errorf("fetch chats: %w: %s", ErrUnexpectedStatus, wrapped.Error)
	}
	return wrapped.Chats, nil
}

// FetchMessages returns a chat's message history, ciphertext included.
func (c *Client) FetchMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	body, err := c.get(ctx, "/api/messages?chat_id="+strconv.Itoa(chatID))
	if err != nil {
		return nil, err
	}

	var msgs []models.Message
	if err := json.Unmarshal(body, &msgs); err == nil {
		return msgs, nil
	}
	var wrapped struct {
		Success  bool             `json:"success"`
		Messages []models.Message `json:"messages"`
		Error    string           `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}
	if !wrapped.Success {
		return nil, fmt.Errorf("fetch messages: %w: %s", ErrUnexpectedStatus, wrapped.Error)
	}
	return wrapped.Messages, nil
}

// SendMessage submits a text message, plaintext or enveloped.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	return c.postJSON(ctx, "/api/messages", req)
}

// UploadFile submits a file as multipart form data.
func (c *Client) UploadFile(ctx context.Context, chatID int, filename string, content io.Reader) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create multipart file field: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copy file content: %w", err)
	}
	if err := form.WriteField("chat_id", strconv.Itoa(chatID)); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("finalize multipart form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &buf)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// FetchParticipantKeys returns the public keys of a chat's members.
func (c *Client) FetchParticipantKeys(ctx context.Context, chatID int) ([]models.ParticipantKey, error) {
	body, err := c.get(ctx, "/api/chats/"+strconv.Itoa(chatID)+"/participants-keys")
	if err != nil {
		return nil, err
	}

	var keys []models.ParticipantKey
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, fmt.Errorf("decode participant keys: %w", err)
	}
	return keys, nil
}

// FetchPublicKey returns one user's current public key.
func (c *Client) FetchPublicKey(ctx context.Context, userID int) (string, error) {
	body, err := c.get(ctx, "/api/users/"+strconv.Itoa(userID)+"/public-key")
	if err != nil {
		return "", err
	}

	var key struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.Unmarshal(body, &key); err != nil {
		return "", fmt.Errorf("decode public key response: %w", err)
	}
	if key.PublicKey == "" {
		return "", fmt.Errorf("public key for user %d: %w", userID, ErrNotFound)
	}
	return key.PublicKey, nil
}

// PublishPublicKey uploads the user's public key to the directory.
func (c *Client) PublishPublicKey(ctx context.Context, userID int, publicKey string) error {
	payload := struct {
		PublicKey string `json:"public_key"`
	}{PublicKey: publicKey}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal public key payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/api/users/"+strconv.Itoa(userID)+"/public-key", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build publish key request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("publish public key: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// MarkRead clears the server-side unread counter for a chat.
func (c *Client) MarkRead(ctx context.Context, userID, chatID int) error {
	payload := struct {
		UserID int `json:"user_id"`
		ChatID int `json:"chat_id"`
	}{UserID: userID, ChatID: chatID}
	return c.postJSON(ctx, "/api/mark_read", payload)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %q: %w", path, err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response for %q: %w", path, err)
	}
	return body, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %q: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request for %q: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %q: %w", path, err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", resp.Request.Method, resp.Request.URL.Path, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w: %s", resp.Request.Method, resp.Request.URL.Path, ErrUnexpectedStatus, resp.Status)
}
