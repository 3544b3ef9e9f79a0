package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/ReilBleem13/HelloChat/internal/service"
	"github.com/ReilBleem13/HelloChat/internal/utils"
	"github.com/gorilla/websocket"
)

type ChatServiceIn interface {
	CreateChat(ctx context.Context, userID, otherUserID string) (*service.CreateChatResult, error)
	ListChats(ctx context.Context, userID string) ([]domain.ChatWithUnseen, error)
	SendMessage(ctx context.Context, in *service.SendMessageDTO) (*domain.Message, error)
	QueueMessage(ctx context.Context, in *service.SendMessageDTO) (*domain.Message, error)
	UpdateMessageMedia(ctx context.Context, userID, messageID, key string) (*domain.Message, error)
	GetMessages(ctx context.Context, userID, chatID string) ([]domain.Message, error)
}

type ConnHandler interface {
	HandleConn(ctx context.Context, client *service.Client)
}

type Handler struct {
	chatSrv  ChatServiceIn
	conns    ConnHandler
	secret   string
	upgrader *websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(chatSrv ChatServiceIn, conns ConnHandler, secret string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		chatSrv: chatSrv,
		conns:   conns,
		secret:  secret,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFromRequest(r)
	if err != nil {
		handleError(w, err)
		return
	}
	claims, err := utils.ValidateAccessToken(token, h.secret)
	if err != nil {
		handleError(w, err)
		return
	}

	// Upgrade writes its own error response.
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := service.NewClient(claims.UserID(), conn)
	h.conns.HandleConn(r.Context(), client)
}

func (h *Handler) handleNewChat(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	var in CreateChatJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		handleError(w, domain.ErrInvalidRequest)
		return
	}

	res, err := h.chatSrv.CreateChat(r.Context(), userID, in.OtherUserID)
	if err != nil {
		handleError(w, err)
		return
	}

	if !res.Created {
		writeJSON(w, http.StatusOK, &CreatedChat{Message: "Chat already exists", ChatID: res.Chat.ID})
		return
	}
	writeJSON(w, http.StatusCreated, &CreatedChat{Message: "Chat created", ChatID: res.Chat.ID})
}

func (h *Handler) handleGetAllChats(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	chats, err := h.chatSrv.ListChats(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &ChatsResponse{Chats: chats})
}

func (h *Handler) decodeSend(r *http.Request) (*service.SendMessageDTO, error) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return nil, err
	}

	var in SendMessageJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return nil, domain.ErrInvalidRequest
	}

	return &service.SendMessageDTO{
		ChatID:    in.ChatID,
		Sender:    userID,
		Text:      in.Text,
		MediaType: in.MediaType,
		MediaKey:  in.MediaKey,
		MediaInfo: in.MediaInfo,
	}, nil
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	dto, err := h.decodeSend(r)
	if err != nil {
		handleError(w, err)
		return
	}

	msg, err := h.chatSrv.SendMessage(r.Context(), dto)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, &SentMessage{Message: msg, Sender: dto.Sender})
}

func (h *Handler) handleQueueMessage(w http.ResponseWriter, r *http.Request) {
	dto, err := h.decodeSend(r)
	if err != nil {
		handleError(w, err)
		return
	}

	msg, err := h.chatSrv.QueueMessage(r.Context(), dto)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &SentMessage{
		Message:         msg,
		ClientMessageID: msg.ClientMessageID,
		Sender:          dto.Sender,
	})
}

func (h *Handler) handleUpdateMedia(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	var in UpdateMediaJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		handleError(w, domain.ErrInvalidRequest)
		return
	}

	if _, err := h.chatSrv.UpdateMessageMedia(r.Context(), userID, in.MessageID, in.MediaKey); err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &StatusResponse{Message: "Message updated successfully"})
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	chatID := r.PathValue("chatId")
	messages, err := h.chatSrv.GetMessages(r.Context(), userID, chatID)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &MessagesResponse{ChatID: chatID, Messages: messages})
}
