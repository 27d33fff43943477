// Package ws exposes the chat protocol over a websocket endpoint.
// Each connection becomes one session; frames flow through the chat
// service, replies and broadcasts come back through the peer sink.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"chat-gateway/domain/event"
	"chat-gateway/services"
)

// Malformed frames at the protocol level (unknown type, bad fields)
// keep the connection open; HandleFrame drops them. This cap applies
// one level lower: a stream syntax error corrupts the json.Decoder's
// framing, so after a few consecutive ones the connection is unusable
// and gets closed.
const maxDecodeErrorsPerConn = 3

// wsPeer is the write side of one connection. The encoder is guarded
// so relay broadcasts and direct replies never interleave a frame.
type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
	conn    *websocket.Conn
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{encoder: json.NewEncoder(conn), conn: conn}
}

func (p *wsPeer) Send(e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(e)
}

func (p *wsPeer) Close() error {
	return p.conn.Close()
}

// NewHandler serves the websocket endpoint on top of the chat service.
func NewHandler(log *slog.Logger, service *services.ChatService) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		handleConn(log, service, conn)
	})
}

func handleConn(log *slog.Logger, service *services.ChatService, conn *websocket.Conn) {
	ctx := conn.Request().Context()
	peer := newWSPeer(conn)
	session := service.Attach(peer)
	// The request context is already canceled when the connection
	// drops; teardown runs on its own context so the leave still
	// reaches the stores.
	defer service.Detach(context.Background(), session)

	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			log.Warn("Websocket decode failed", "error", err)
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		service.HandleFrame(ctx, session, raw)
	}
}
