package bridge

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/qverse/iotbridge/internal/logger"
)

// wsTransport 基于websocket连接的传输层，写操作串行化
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) WriteJSON(v interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// Server 桥接通道的websocket接入端
// 同一时刻只服务一个对端连接，新连接在旧连接存在时被拒绝。
type Server struct {
	channel  *Channel
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewServer 创建websocket接入端
// peerOrigin 非空时升级前做精确来源校验。
func NewServer(channel *Channel, peerOrigin string) *Server {
	return &Server{
		channel: channel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if peerOrigin == "" {
					return true
				}
				return r.Header.Get("Origin") == peerOrigin
			},
		},
		log: logger.WithModule("bridge.server"),
	}
}

// ServeHTTP 升级连接并驱动通道读循环
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "error", err.Error(), "remote", r.RemoteAddr)
		return
	}

	t := &wsTransport{conn: conn}
	if err := s.channel.Attach(t, r.Header.Get("Origin")); err != nil {
		s.log.Warn("Attach rejected", "error", err.Error(), "remote", r.RemoteAddr)
		conn.Close()
		return
	}
	defer func() {
		s.channel.Detach()
		conn.Close()
	}()

	s.log.Info("Peer connected", "remote", r.RemoteAddr)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("Read loop terminated", "error", err.Error())
			}
			return
		}
		s.channel.Dispatch(&msg)
	}
}
