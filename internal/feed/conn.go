package feed

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/mlee/checkline-backend/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Subscribers only send pings
	// and the occasional ack frame.
	maxMessageSize = 4 * 1024

	// Inbound frames per second before the subscriber is throttled.
	maxMessagesPerSecond = 10
)

// Conn wraps the websocket connection.
type Conn struct {
	*websocket.Conn
}

// ReadPump drains inbound frames. The feed is one-directional; inbound
// traffic is only keepalive, so frames beyond the rate limit are dropped.
func (s *Subscriber) ReadPump() {
	defer func() {
		s.Hub.unregister <- s
		s.Conn.Close()
	}()

	s.Conn.SetReadLimit(maxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("Feed read error", err, map[string]interface{}{
					"device_key": s.DeviceKey,
				})
			}
			break
		}

		s.RateMu.Lock()
		now := time.Now()
		if now.Sub(s.LastResetTime) >= time.Second {
			s.MessageCount = 0
			s.LastResetTime = now
		}
		s.MessageCount++
		count := s.MessageCount
		s.RateMu.Unlock()

		if count > maxMessagesPerSecond {
			logger.Warn("Feed rate limit exceeded", map[string]interface{}{
				"device_key": s.DeviceKey,
				"count":      count,
			})
		}
	}
}

// WritePump pushes events and pings to the peer.
func (s *Subscriber) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Error("Feed write error", err, map[string]interface{}{
					"device_key": s.DeviceKey,
				})
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
