package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Gateway runs the read and write pumps of websocket clients and relays
// their room and typing events through the hub.
type Gateway struct {
	hub *Hub
	log *slog.Logger
}

func NewGateway(hub *Hub, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		hub: hub,
		log: log,
	}
}

// HandleConn blocks until the connection ends or ctx is cancelled.
func (gw *Gateway) HandleConn(ctx context.Context, client *Client) {
	gw.hub.Register(client)
	defer gw.hub.Unregister(client)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return gw.read(gctx, client)
	})

	g.Go(func() error {
		return gw.write(gctx, client)
	})

	g.Go(func() error {
		<-gctx.Done()
		client.Close()
		_ = client.conn.Close()
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		gw.log.Error("Error during handle conn", "conn_id", client.id, "error", err)
	}
}

func (gw *Gateway) read(ctx context.Context, client *Client) error {
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var frame Frame
		if err := client.conn.ReadJSON(&frame); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				gw.log.Warn("Dropping malformed frame", "conn_id", client.id, "error", err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				gw.log.Warn("Websocket close error", "conn_id", client.id, "error", err)
			}
			return context.Canceled
		}

		gw.dispatch(client, &frame)
	}
}

func (gw *Gateway) dispatch(client *Client, frame *Frame) {
	switch frame.Event {
	case EventJoinChat, EventLeaveChat:
		var chatID string
		if err := json.Unmarshal(frame.Data, &chatID); err != nil || chatID == "" {
			gw.log.Warn("Invalid room event", "event", frame.Event, "conn_id", client.id)
			return
		}
		if frame.Event == EventJoinChat {
			gw.hub.Join(client.id, chatID)
		} else {
			gw.hub.Leave(client.id, chatID)
		}

	case EventTyping, EventStopTyping:
		var ev TypingEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil || ev.ChatID == "" {
			gw.log.Warn("Invalid typing event", "event", frame.Event, "conn_id", client.id)
			return
		}
		if ev.UserID == "" {
			ev.UserID = client.userID
		}
		out := EventUserTyping
		if frame.Event == EventStopTyping {
			out = EventUserStoppedTyping
		}
		gw.hub.EmitToRoomExcept(ev.ChatID, client.id, out, ev)

	default:
		gw.log.Debug("Unknown event", "event", frame.Event, "conn_id", client.id)
	}
}

func (gw *Gateway) write(ctx context.Context, client *Client) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-client.done:
			_ = client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return context.Canceled

		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}

		case frame := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return err
			}
		}
	}
}
