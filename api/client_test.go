package api

import (
	"chat-link/credential"
	"chat-link/domain"
	"chat-link/errors"
	"context"
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc, token domain.Credential) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL + "/api")
	require.NoError(t, err)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewClient(log, base, &http.Client{Timeout: time.Second}, credential.NewStatic(token))
}

func TestClient_MyConversations_Unwraps_Data(t *testing.T) {
	req := require.New(t)
	var authorization, path string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"data":[{"id":"c-1","status":"ACTIVE","lastMessageAt":"2026-10-19T10:00:00Z"},{"id":"c-2","status":"PENDING"}]}`))
	}, "token-1")

	conversations, err := client.MyConversations(context.Background())

	req.NoError(err)
	req.Equal("Bearer token-1", authorization)
	req.Equal("/api/chat/my-conversations", path)
	req.Len(conversations, 2)
	req.Equal(domain.ACTIVE, conversations[0].Status)
	req.NotNil(conversations[0].LastMessageAt)
	req.Nil(conversations[1].LastMessageAt)
}

func TestClient_GetConversation_Bare_Payload(t *testing.T) {
	req := require.New(t)
	var path string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"id":"c-1","status":"ACTIVE","messages":[{"id":"m-1","content":"hi","isSystem":true}]}`))
	}, "token-1")

	conversation, err := client.GetConversation(context.Background(), "c-1")

	req.NoError(err)
	req.Equal("/api/chat/conversations/c-1", path)
	req.Len(conversation.Messages, 1)
	req.True(conversation.Messages[0].IsSystem)
}

func TestClient_StartConversation_Posts_Message(t *testing.T) {
	req := require.New(t)
	var body map[string]string
	var method, contentType string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"c-9","status":"PENDING"}}`))
	}, "token-1")

	conversation, err := client.StartConversation(context.Background(), "Is the unit available?")

	req.NoError(err)
	req.Equal(http.MethodPost, method)
	req.Equal("application/json", contentType)
	req.Equal(map[string]string{"message": "Is the unit available?"}, body)
	req.Equal(domain.ConversationID("c-9"), conversation.ID)
}

func TestClient_Status_Error(t *testing.T) {
	req := require.New(t)
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Conversation not found","statusCode":404}`))
	}, "token-1")

	_, err := client.GetConversation(context.Background(), "missing")

	var statusErr *StatusError
	req.True(goerrors.As(err, &statusErr))
	req.Equal(http.StatusNotFound, statusErr.StatusCode)
	req.Equal("Conversation not found", statusErr.Message)
}

func TestClient_Validation_Messages_Are_Joined(t *testing.T) {
	req := require.New(t)
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":["message should not be empty","message must be a string"]}`))
	}, "token-1")

	_, err := client.StartConversation(context.Background(), "")

	var statusErr *StatusError
	req.True(goerrors.As(err, &statusErr))
	req.Equal("message should not be empty, message must be a string", statusErr.Message)
}

func TestClient_Requires_Credential(t *testing.T) {
	req := require.New(t)
	called := false
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "")

	_, err := client.MyConversations(context.Background())

	req.ErrorIs(err, errors.ErrMissingCredential)
	req.False(called)
}
