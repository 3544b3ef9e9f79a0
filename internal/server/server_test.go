package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/ReilBleem13/HelloChat/internal/service"
	"github.com/ReilBleem13/HelloChat/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeChatService struct {
	created  bool
	sendErr  error
	lastSend *service.SendMessageDTO
}

func (f *fakeChatService) CreateChat(_ context.Context, userID, other string) (*service.CreateChatResult, error) {
	if other == "" {
		return nil, domain.ErrInvalidRequest
	}
	return &service.CreateChatResult{
		Chat:    &domain.Chat{ID: "c1", Users: []string{userID, other}},
		Created: f.created,
	}, nil
}

func (f *fakeChatService) ListChats(_ context.Context, userID string) ([]domain.ChatWithUnseen, error) {
	return []domain.ChatWithUnseen{{Chat: domain.Chat{ID: "c1"}, OtherUserID: "bob", UnseenCount: 2}}, nil
}

func (f *fakeChatService) SendMessage(_ context.Context, in *service.SendMessageDTO) (*domain.Message, error) {
	f.lastSend = in
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &domain.Message{ID: "m1", ChatID: in.ChatID, Sender: in.Sender, Text: in.Text}, nil
}

func (f *fakeChatService) QueueMessage(_ context.Context, in *service.SendMessageDTO) (*domain.Message, error) {
	f.lastSend = in
	return &domain.Message{ID: "m2", ChatID: in.ChatID, Sender: in.Sender, ClientMessageID: "m2"}, nil
}

func (f *fakeChatService) UpdateMessageMedia(_ context.Context, userID, messageID, key string) (*domain.Message, error) {
	if messageID != "m1" {
		return nil, domain.ErrMessageNotFound
	}
	return &domain.Message{ID: messageID}, nil
}

func (f *fakeChatService) GetMessages(_ context.Context, userID, chatID string) ([]domain.Message, error) {
	if chatID != "c1" {
		return nil, domain.ErrChatNotFound
	}
	return []domain.Message{{ID: "m1", ChatID: chatID}}, nil
}

type fakePublisher struct {
	err  error
	sent []any
}

func (f *fakePublisher) Publish(_ context.Context, v any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, v)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newChatServer(t *testing.T, svc ChatServiceIn) *httptest.Server {
	t.Helper()
	log := discardLogger()
	hub := service.NewHub(service.NewPresence(), log)
	h := NewHandler(svc, service.NewGateway(hub, log), testSecret, log)

	srv := httptest.NewServer(NewServer(
		WithChatRoutes(h),
		WithLogger(log),
		WithReadiness(func() ReadinessResponse {
			return ReadinessResponse{Status: "degraded", Queue: "failed", Backend: "memory"}
		}),
	).Handler())
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return srv
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := utils.GenerateAccessToken(utils.TokenUser{ID: userID}, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, method, url, userID, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAuthRequired(t *testing.T) {
	srv := newChatServer(t, &fakeChatService{})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/chat/all", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/chat/all", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNewChat(t *testing.T) {
	svc := &fakeChatService{created: true}
	srv := newChatServer(t, svc)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/chat/new", "alice", `{"otherUserId":"bob"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "c1", body["chatId"])
	assert.Equal(t, "Chat created", body["message"])

	svc.created = false
	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/chat/new", "alice", `{"otherUserId":"bob"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Chat already exists", body["message"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/chat/new", "alice", `{bad`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetAllChats(t *testing.T) {
	srv := newChatServer(t, &fakeChatService{})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/chat/all", "alice", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	chats := body["chats"].([]any)
	require.Len(t, chats, 1)
	assert.EqualValues(t, 2, chats[0].(map[string]any)["unseenCount"])
}

func TestSendAndQueueMessage(t *testing.T) {
	svc := &fakeChatService{}
	srv := newChatServer(t, svc)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/message", "alice", `{"chatId":"c1","text":"hi"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "alice", body["sender"])
	assert.Equal(t, "alice", svc.lastSend.Sender)
	assert.Equal(t, "hi", svc.lastSend.Text)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/message/queue", "alice",
		`{"chatId":"c1","mediaType":"file","mediaInfo":{"filename":"a.pdf","fileType":"application/pdf","fileSize":3}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "m2", body["clientMessageId"])
	assert.Equal(t, domain.KindFile, svc.lastSend.MediaType)
	require.NotNil(t, svc.lastSend.MediaInfo)
	assert.Equal(t, "a.pdf", svc.lastSend.MediaInfo.Filename)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not participant", domain.ErrNotParticipant, http.StatusForbidden},
		{"missing chat", domain.ErrChatNotFound, http.StatusNotFound},
		{"wrapped app error", errors.Join(errors.New("ctx"), domain.ErrInvalidRequest), http.StatusBadRequest},
		{"unknown", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newChatServer(t, &fakeChatService{sendErr: tt.err})
			resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/message", "alice", `{"chatId":"c1","text":"hi"}`)
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestUpdateMediaAndGetMessages(t *testing.T) {
	srv := newChatServer(t, &fakeChatService{})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/message/media", "alice", `{"messageId":"m1","mediaKey":"uploads/k"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Message updated successfully", body["message"])

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/message/media", "alice", `{"messageId":"zz","mediaKey":"k"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/message/c1", "alice", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["messages"], 1)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/message/c9", "alice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newChatServer(t, &fakeChatService{})

	resp, _ := do(t, http.MethodGet, srv.URL+"/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "memory", body["backend"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(raw), "hellochat_queue_redirected_total")
}

func TestWebsocketHandshake(t *testing.T) {
	srv := newChatServer(t, &fakeChatService{})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token(t, "alice"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Event string   `json:"event"`
		Data  []string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, service.EventOnlineUsers, frame.Event)
	assert.Equal(t, []string{"alice"}, frame.Data)
}

func TestSendOTP(t *testing.T) {
	pub := &fakePublisher{}
	srv := httptest.NewServer(NewServer(WithMailRoutes(NewMailHandler(pub))).Handler())
	defer srv.Close()

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/otp", "", `{"to":"a@example.com","subject":"OTP","body":"123"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Len(t, pub.sent, 1)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/otp", "", `{"to":"nobody","subject":"OTP"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	pub.err = errors.New("channel closed")
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/otp", "", `{"to":"a@example.com","subject":"OTP","body":"123"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
