package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"horse.fit/finnews/internal/alert"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPongTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsSubscriber bridges one websocket connection into the alert hub. Send is
// serialized by a write mutex because the hub fans out from multiple
// goroutines.
type wsSubscriber struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

func (s *wsSubscriber) Send(a alert.Alert) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(a)
}

func (s *wsSubscriber) Disconnect() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = s.conn.Close()
}

// handleAlertSocket upgrades the connection and streams live alerts until the
// client goes away. History is not replayed; clients pull it from
// /api/v1/alerts/recent.
func (s *Server) handleAlertSocket(c echo.Context) error {
	if s.hub == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "alert hub is not available")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	sub := &wsSubscriber{conn: conn}
	s.hub.Subscribe(sub)
	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("websocket client connected")

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

	// Reader loop drains control frames and detects the client closing.
	go func() {
		defer func() {
			s.hub.Unsubscribe(sub)
			sub.Disconnect()
			s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("websocket client disconnected")
		}()
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}()

	return nil
}
