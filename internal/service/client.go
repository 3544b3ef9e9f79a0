package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sendBufSize = 256

type Client struct {
	id     string
	userID string
	conn   *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// enqueue hands a frame to the write pump. It returns false if the client is
// closed or its buffer is full.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}
