package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/pkg/metrics"
)

const wsPingInterval = 30 * time.Second

// WebSocketHandler relays the caller's search progress and completion events.
// Admins may watch another account with ?user=<name>. Payloads are the JSON
// events as published; the client sends nothing but control frames.
func WebSocketHandler(relay EventRelay) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		p, _ := c.Locals(localPrincipal).(domain.Principal)
		target := p.Username
		if u := c.Query("user"); u != "" && p.IsAdmin {
			target = u
		}
		logger := slog.With("user", p.Username, "watching", target, "remote", c.RemoteAddr().String())

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		write := func(msgType int, data []byte) error {
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(msgType, data)
		}

		stop, err := relay.RelayUser(target, func(data []byte) {
			_ = write(websocket.TextMessage, data)
		})
		if err != nil {
			logger.Error("ws relay subscribe failed", "error", err)
			msg, _ := json.Marshal(map[string]string{"error": "subscription failed"})
			_ = write(websocket.TextMessage, msg)
			return
		}
		defer stop()
		logger.Info("ws client connected")

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := write(websocket.PingMessage, nil); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Block until the client goes away.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		logger.Info("ws client disconnected")
	}
}
