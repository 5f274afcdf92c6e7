package channel

import (
	"chat-link/domain/event"
	"chat-link/errors"
	"chat-link/internal/sockettest"
	"chat-link/transport"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

type recorder struct {
	events chan event.ServerEvent
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event.ServerEvent, 128)}
}

func (r *recorder) handle(evt event.ServerEvent) {
	r.events <- evt
}

// waitFor skips events until one with the given name shows up.
func (r *recorder) waitFor(t *testing.T, name string) event.ServerEvent {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case evt := <-r.events:
			if evt.Name() == name {
				return evt
			}
		case <-deadline:
			t.Fatalf("event %s not received", name)
			return nil
		}
	}
}

func newManager(srv *sockettest.Server, attempts int) *Manager {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dialers := []transport.Dialer{transport.NewWebSocket(time.Second, time.Second)}
	return NewManager(log, dialers, Options{
		BaseURL:           srv.BaseURL(),
		Path:              "/socket.io/",
		ReconnectAttempts: attempts,
		ReconnectDelay:    20 * time.Millisecond,
		HandshakeTimeout:  time.Second,
		Codec:             event.NewCodec("chat"),
	})
}

func TestManager_Open_EmptyCredential(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()

	ch, err := newManager(srv, 0).Open(context.Background(), "  ", nil)

	req.ErrorIs(err, errors.ErrMissingCredential)
	req.Nil(ch)
}

func TestChannel_Connects_With_Bearer_And_Auth_Payload(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	srv.Greet(map[string]any{"user": map[string]string{"id": "u-1"}})
	rec := newRecorder()

	// When a channel is opened with a credential
	ch, err := newManager(srv, 0).Open(context.Background(), "token-1", rec.handle)
	req.NoError(err)
	defer ch.Close()

	// Then the socket is acknowledged and the greeting delivered
	connect := rec.waitFor(t, event.ConnectType).(event.Connect)
	req.Equal(transport.WEBSOCKET, connect.Transport)
	greeting := rec.waitFor(t, event.ConnectedType).(event.Connected)
	user, ok := greeting.User()
	req.True(ok)
	req.Equal("u-1", user.ID)

	// And the credential was used both as header and auth payload
	req.Equal([]string{"Bearer token-1"}, srv.Authorizations())
	req.Equal([]string{"token-1"}, srv.Tokens())
	req.Equal(Connected, ch.State())
}

func TestChannel_Emit(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	rec := newRecorder()

	ch, err := newManager(srv, 0).Open(context.Background(), "token-1", rec.handle)
	req.NoError(err)
	defer ch.Close()
	rec.waitFor(t, event.ConnectType)
	peer, err := srv.NextPeer(wait)
	req.NoError(err)

	err = ch.Emit(context.Background(), "chat:joinConversation", event.JoinConversation{ConversationID: "c-1"})
	req.NoError(err)

	received, err := peer.NextEvent(wait)
	req.NoError(err)
	req.Equal("chat:joinConversation", received.Name)
	req.Len(received.Args, 1)
	req.JSONEq(`{"conversationId":"c-1"}`, string(received.Args[0]))
}

func TestChannel_Delivers_Events_In_Arrival_Order(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	rec := newRecorder()

	ch, err := newManager(srv, 0).Open(context.Background(), "token-1", rec.handle)
	req.NoError(err)
	defer ch.Close()
	rec.waitFor(t, event.ConnectType)
	peer, err := srv.NextPeer(wait)
	req.NoError(err)

	for _, id := range []string{"A", "B", "C"} {
		req.NoError(peer.Emit("chat:newMessage", map[string]string{"id": id, "conversationId": "c-1"}))
	}

	var ids []string
	for range 3 {
		msg := rec.waitFor(t, event.NewMessageType).(event.NewMessage)
		ids = append(ids, msg.Message.ID)
	}
	req.Equal([]string{"A", "B", "C"}, ids)
}

func TestChannel_Reconnects_After_Drop(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	rec := newRecorder()

	ch, err := newManager(srv, 3).Open(context.Background(), "token-1", rec.handle)
	req.NoError(err)
	defer ch.Close()
	rec.waitFor(t, event.ConnectType)
	peer, err := srv.NextPeer(wait)
	req.NoError(err)

	// When the network drops
	peer.Drop()

	// Then the channel signals the loss and reconnects by itself
	lost := rec.waitFor(t, event.DisconnectedType).(event.Disconnected)
	req.False(lost.Final)
	attempt := rec.waitFor(t, event.ReconnectingType).(event.Reconnecting)
	req.Equal(1, attempt.Attempt)
	rec.waitFor(t, event.ConnectType)
	_, err = srv.NextPeer(wait)
	req.NoError(err)
	req.Equal(Connected, ch.State())
	req.Len(srv.Tokens(), 2)
}

func TestChannel_Gives_Up_After_Bounded_Attempts(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	manager := newManager(srv, 2)
	// Given a server which is not reachable anymore
	srv.Close()
	rec := newRecorder()

	ch, err := manager.Open(context.Background(), "token-1", rec.handle)
	req.NoError(err)
	defer ch.Close()

	// Then every attempt fails and the channel stays disconnected
	failed := rec.waitFor(t, event.ReconnectFailedType).(event.ReconnectFailed)
	req.Equal(2, failed.Attempts)
	select {
	case <-ch.Done():
	case <-time.After(wait):
		req.Fail("connection loop should have stopped")
	}
	req.Equal(Disconnected, ch.State())

	err = ch.Emit(context.Background(), "chat:sendMessage", nil)
	req.ErrorIs(err, errors.ErrNotConnected)
}

func TestChannel_Refused_Is_Not_Retried(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	srv.Refuse("Not authorized")
	rec := newRecorder()

	ch, err := newManager(srv, 5).Open(context.Background(), "expired", rec.handle)
	req.NoError(err)
	defer ch.Close()

	refused := rec.waitFor(t, event.ConnectErrorType).(event.ConnectError)
	req.True(refused.Refused)
	req.Contains(refused.Message, "Not authorized")

	select {
	case <-ch.Done():
	case <-time.After(wait):
		req.Fail("refused channel should not reconnect")
	}
	req.Equal(Disconnected, ch.State())
	req.Len(srv.Tokens(), 1)
}

func TestChannel_Server_Disconnect_Is_Not_Retried(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	rec := newRecorder()

	ch, err := newManager(srv, 5).Open(context.Background(), "token-1", rec.handle)
	req.NoError(err)
	defer ch.Close()
	rec.waitFor(t, event.ConnectType)
	peer, err := srv.NextPeer(wait)
	req.NoError(err)

	req.NoError(peer.Disconnect())

	lost := rec.waitFor(t, event.DisconnectedType).(event.Disconnected)
	req.True(lost.Final)
	select {
	case <-ch.Done():
	case <-time.After(wait):
		req.Fail("server disconnect should end the channel")
	}
	req.Equal(Disconnected, ch.State())
}

func TestChannel_Answers_Ping(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	rec := newRecorder()

	ch, err := newManager(srv, 0).Open(context.Background(), "token-1", rec.handle)
	req.NoError(err)
	defer ch.Close()
	rec.waitFor(t, event.ConnectType)
	peer, err := srv.NextPeer(wait)
	req.NoError(err)

	req.NoError(peer.Ping())

	req.Eventually(func() bool { return peer.Pongs() == 1 }, wait, 10*time.Millisecond)
}

func TestChannel_Close_Cancels_Listener(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	rec := newRecorder()

	ch, err := newManager(srv, 3).Open(context.Background(), "token-1", rec.handle)
	req.NoError(err)
	rec.waitFor(t, event.ConnectType)
	peer, err := srv.NextPeer(wait)
	req.NoError(err)

	// When the channel is closed
	ch.Close()
	ch.Close()

	// Then an event pushed afterwards never reaches the handler
	_ = peer.Emit("chat:newMessage", map[string]string{"id": "late"})
	select {
	case evt := <-rec.events:
		req.Failf("unexpected event after close", "%s", evt.Name())
	case <-time.After(100 * time.Millisecond):
	}
	req.Equal(Closed, ch.State())
	req.ErrorIs(ch.Emit(context.Background(), "chat:sendMessage", nil), errors.ErrChannelClosed)

	select {
	case <-peer.Closed():
	case <-time.After(wait):
		req.Fail("socket should be closed on the server side")
	}
}

func TestChannel_Parent_Context_Closes_Channel(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := newManager(srv, 3).Open(ctx, "token-1", rec.handle)
	req.NoError(err)
	rec.waitFor(t, event.ConnectType)

	cancel()

	req.Eventually(func() bool { return ch.State() == Closed }, wait, 10*time.Millisecond)
}

func TestChannel_Single_Subscriber(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	first := newRecorder()
	second := newRecorder()

	ch, err := newManager(srv, 0).Open(context.Background(), "token-1", nil)
	req.NoError(err)
	defer ch.Close()

	unsubscribe, err := ch.Subscribe(first.handle)
	req.NoError(err)
	_, err = ch.Subscribe(second.handle)
	req.ErrorIs(err, errors.ErrAlreadySubscribed)

	unsubscribe()
	_, err = ch.Subscribe(second.handle)
	req.NoError(err)
	// A stale unsubscribe does not remove the new subscriber
	unsubscribe()

	peer, err := srv.NextPeer(wait)
	req.NoError(err)
	req.NoError(peer.Emit("chat:conversationJoined", json.RawMessage(`{"conversationId":"c-1"}`)))
	joined := second.waitFor(t, event.ConversationJoinedType).(event.ConversationJoined)
	req.Equal("c-1", string(joined.ConversationID))
}

func TestChannel_Silent_Server_Times_Out_The_Handshake(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	srv.Stall()
	rec := newRecorder()
	m := newManager(srv, 1)
	m.opts.HandshakeTimeout = 100 * time.Millisecond

	ch, err := m.Open(context.Background(), "token-1", rec.handle)
	req.NoError(err)
	defer ch.Close()

	// Then the missing open frame counts as a failed attempt and is retried
	rec.waitFor(t, event.ConnectErrorType)
	rec.waitFor(t, event.ReconnectingType)
	failed := rec.waitFor(t, event.ReconnectFailedType).(event.ReconnectFailed)
	req.Equal(1, failed.Attempts)
	req.Equal(Disconnected, ch.State())
	req.Len(srv.Authorizations(), 2)
}

func TestChannel_Cancelled_Context_Closes_Without_Dialing(t *testing.T) {
	req := require.New(t)
	srv := sockettest.NewServer()
	defer srv.Close()
	m := newManager(srv, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 200; i++ {
		ch, err := m.New(ctx, "token-1")
		req.NoError(err)
		req.Eventually(func() bool { return ch.State() == Closed }, wait, time.Millisecond)

		ch.Start()
		select {
		case <-ch.Done():
		case <-time.After(wait):
			req.Fail("a closed channel should not start")
		}
		ch.Close()
	}
	req.Empty(srv.Authorizations())
}
