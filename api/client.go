// Package api is the request/response side of the chat backend. It is used
// to list conversations, read history and start a conversation when no room is joined.
package api

import (
	"bytes"
	"chat-link/contract"
	"chat-link/domain"
	"chat-link/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

type Client struct {
	log         *slog.Logger
	baseURL     *url.URL
	httpClient  *http.Client
	credentials contract.CredentialProvider
}

func NewClient(log *slog.Logger, baseURL *url.URL, httpClient *http.Client, credentials contract.CredentialProvider) *Client {
	return &Client{
		log:         log.With("component", "api"),
		baseURL:     baseURL,
		httpClient:  httpClient,
		credentials: credentials,
	}
}

type startConversationRequest struct {
	Message string `json:"message"`
}

func (c *Client) MyConversations(ctx context.Context) ([]domain.Conversation, error) {
	var conversations []domain.Conversation
	if err := c.do(ctx, http.MethodGet, "/chat/my-conversations", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (c *Client) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	var conversation domain.Conversation
	path := "/chat/conversations/" + url.PathEscape(string(id))
	if err := c.do(ctx, http.MethodGet, path, nil, &conversation); err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

// StartConversation creates a conversation whose first message is message.
func (c *Client) StartConversation(ctx context.Context, message string) (domain.Conversation, error) {
	var conversation domain.Conversation
	body := startConversationRequest{Message: message}
	if err := c.do(ctx, http.MethodPost, "/chat/conversations", body, &conversation); err != nil {
		return domain.Conversation{}, err
	}
	return conversation, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	credential, err := c.credentials.Credential(ctx)
	if err != nil {
		return err
	}
	if credential.Empty() {
		return errors.ErrMissingCredential
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", credential.Bearer())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	c.log.Debug("Rest call", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	return decode(respBody, out)
}

// decode accepts both a bare payload and one wrapped in {"data": ...}.
func decode(body []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		body = envelope.Data
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	var message string
	if err := json.Unmarshal(payload.Message, &message); err == nil && message != "" {
		return message
	}
	var messages []string
	if err := json.Unmarshal(payload.Message, &messages); err == nil && len(messages) > 0 {
		return strings.Join(messages, ", ")
	}
	return payload.Error
}
