package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/utils"
	"github.com/gorilla/websocket"
)

var (
	nConns = flag.Int("conns", 10000, "number of websocket connections")
	addr   = flag.String("addr", "127.0.0.1:3003", "chat service address")
	secret = flag.String("secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
	chatID = flag.String("chat", "", "chat id every connection joins")
)

func main() {
	flag.Parse()

	var frames atomic.Int64
	var conns []*websocket.Conn

	for i := 0; i < *nConns; i++ {
		token, err := utils.GenerateAccessToken(utils.TokenUser{ID: fmt.Sprintf("load-%d", i)}, *secret, time.Hour)
		if err != nil {
			slog.Error("Failed to sign token", "error", err)
			os.Exit(1)
		}

		u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(token)}
		c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			slog.Error("Failed to connect", "conn", i, "error", err)
			os.Exit(1)
		}

		if *chatID != "" {
			if err := c.WriteJSON(map[string]string{"event": "joinChat", "data": *chatID}); err != nil {
				slog.Error("Failed to join chat", "conn", i, "error", err)
			}
		}

		go func(conn *websocket.Conn) {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
				frames.Add(1)
			}
		}(c)
		conns = append(conns, c)
		slog.Debug("Connection established", "conn", i)
	}

	slog.Info("All connections established", "conns", len(conns))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Info("Frames received", "total", frames.Load())
		case <-quit:
			for _, c := range conns {
				_ = c.Close()
			}
			return
		}
	}
}
