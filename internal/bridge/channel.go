package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/qverse/iotbridge/internal/errors"
	"github.com/qverse/iotbridge/internal/logger"
)

// Transport 桥接通道底层传输
type Transport interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Handler 事件处理函数
type Handler func(payload json.RawMessage)

// RequestHandler 请求处理函数，返回值作为应答负载
type RequestHandler func(payload json.RawMessage) (interface{}, error)

// Config 通道配置
type Config struct {
	// HostOrigin 本端来源，握手应答时携带
	HostOrigin string
	// PeerOrigin 允许的对端来源，为空时不校验
	PeerOrigin string
	// HostConfig 握手应答携带的配置块
	HostConfig json.RawMessage
	// RequestTimeout 请求默认超时
	RequestTimeout time.Duration
	// SendQueueLimit 断连期间待发队列容量
	SendQueueLimit int
}

const (
	defaultRequestTimeout = 10 * time.Second
	defaultSendQueueLimit = 256
)

// Channel 跨端消息通道
// 连接建立后等待对端的 bridge.init 握手，收到后回送 init.config
// 并冲刷断连期间积压的待发队列。请求通过 channelId 关联应答。
type Channel struct {
	cfg Config
	log *logger.Logger

	mu            sync.Mutex
	transport     Transport
	connected     bool
	closed        bool
	queue         []*Message
	nextHandlerID int
	handlers      map[Event][]handlerEntry
	reqHandlers   map[Event]RequestHandler
	pending       map[string]chan *Message
}

type handlerEntry struct {
	id int
	h  Handler
}

// NewChannel 创建消息通道
func NewChannel(cfg Config) *Channel {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.SendQueueLimit <= 0 {
		cfg.SendQueueLimit = defaultSendQueueLimit
	}
	return &Channel{
		cfg:         cfg,
		log:         logger.WithModule("bridge"),
		handlers:    make(map[Event][]handlerEntry),
		reqHandlers: make(map[Event]RequestHandler),
		pending:     make(map[string]chan *Message),
	}
}

// Attach 绑定传输层并校验对端来源
func (c *Channel) Attach(t Transport, peerOrigin string) error {
	if t == nil {
		return apperrors.NewError(apperrors.ErrCodeBadRequest, "nil transport")
	}
	if c.cfg.PeerOrigin != "" && peerOrigin != c.cfg.PeerOrigin {
		return apperrors.NewError(apperrors.ErrCodeForbidden,
			fmt.Sprintf("peer origin %q not allowed", peerOrigin))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return apperrors.ErrBridgeClosed
	}
	if c.transport != nil {
		return apperrors.NewError(apperrors.ErrCodeConflict, "transport already attached")
	}
	c.transport = t
	c.log.Info("Transport attached, awaiting handshake", "peer_origin", peerOrigin)
	return nil
}

// Detach 解绑传输层，回到断连排队状态
// 在途请求保留在待应答表中，由各自的超时收尾。
func (c *Channel) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = nil
	c.connected = false
	c.log.Info("Transport detached")
}

// Connected 通道是否已完成握手
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// On 注册事件处理函数，返回用于注销的ID
// 同一事件可挂多个处理函数，按注册顺序依次调用。
func (c *Channel) On(event Event, h Handler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHandlerID++
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: c.nextHandlerID, h: h})
	return c.nextHandlerID
}

// Off 按ID移除事件处理函数
func (c *Channel) Off(event Event, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.handlers[event]
	for i, entry := range entries {
		if entry.id == id {
			c.handlers[event] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

// OnRequest 注册请求处理函数，返回值作为成功应答负载
func (c *Channel) OnRequest(event Event, h RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqHandlers[event] = h
}

// Send 发送事件
// 未完成握手时报文进入FIFO待发队列，握手完成后按序冲刷。
func (c *Channel) Send(event Event, payload interface{}) error {
	msg, err := newEventMessage(event, payload)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeBadRequest, "marshal payload")
	}
	return c.sendMessage(msg)
}

func (c *Channel) sendMessage(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendMessageLocked(msg)
}

func (c *Channel) sendMessageLocked(msg *Message) error {
	if c.closed {
		return apperrors.ErrBridgeClosed
	}
	if !c.connected || c.transport == nil {
		if len(c.queue) >= c.cfg.SendQueueLimit {
			c.log.Warn("Send queue full, dropping message", "event", string(msg.Event))
			return apperrors.NewError(apperrors.ErrCodeConflict, "send queue full")
		}
		c.queue = append(c.queue, msg)
		c.log.Debug("Queued message while disconnected", "event", string(msg.Event), "queued", len(c.queue))
		return nil
	}
	if err := c.transport.WriteJSON(msg); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternalError, "write message")
	}
	return nil
}

// Request 发送请求并等待对端应答
// 每个请求分配独立的 channelId，应答按ID关联，互不干扰。
// ctx 没有截止时间时应用配置的默认超时。
func (c *Channel) Request(ctx context.Context, event Event, payload interface{}) (json.RawMessage, error) {
	msg, err := newEventMessage(event, payload)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeBadRequest, "marshal payload")
	}
	msg.ChannelID = "requestId_" + uuid.NewString()

	replyCh := make(chan *Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, apperrors.ErrBridgeClosed
	}
	c.pending[msg.ChannelID] = replyCh
	if err := c.sendMessageLocked(msg); err != nil {
		delete(c.pending, msg.ChannelID)
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	select {
	case reply := <-replyCh:
		if reply.Success != nil && *reply.Success {
			return reply.Payload, nil
		}
		errMsg := reply.Error
		if errMsg == "" {
			errMsg = "request rejected"
		}
		return nil, apperrors.NewError(apperrors.ErrCodeInternalError, errMsg)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, msg.ChannelID)
		c.mu.Unlock()
		c.log.Warn("Request timed out", "event", string(event), "channel_id", msg.ChannelID)
		return nil, apperrors.WrapError(ctx.Err(), apperrors.ErrCodeTimeout, "request timeout")
	}
}

// Dispatch 处理对端来的报文
func (c *Channel) Dispatch(msg *Message) {
	if msg == nil {
		return
	}

	if msg.IsReply() {
		c.resolveReply(msg)
		return
	}

	if msg.Event == EventBridgeInit {
		c.handleInit()
		return
	}

	if msg.ChannelID != "" {
		c.handleRequest(msg)
		return
	}

	c.mu.Lock()
	entries := make([]handlerEntry, len(c.handlers[msg.Event]))
	copy(entries, c.handlers[msg.Event])
	c.mu.Unlock()
	if len(entries) == 0 {
		c.log.Warn("Unhandled event", "event", string(msg.Event))
		return
	}
	// 某个处理函数崩溃不会中断其余的调用
	for _, entry := range entries {
		c.invokeHandler(msg.Event, entry.h, msg.Payload)
	}
}

func (c *Channel) resolveReply(msg *Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ChannelID]
	if ok {
		delete(c.pending, msg.ChannelID)
	}
	c.mu.Unlock()
	if !ok {
		c.log.Debug("Reply for unknown channel", "channel_id", msg.ChannelID)
		return
	}
	ch <- msg
}

// handleInit 处理 bridge.init 握手：标记连通、回送 init.config、冲刷队列
func (c *Channel) handleInit() {
	initPayload, err := marshalPayload(InitPayload{
		Info:   InitInfo{Origin: c.cfg.HostOrigin},
		Config: c.cfg.HostConfig,
	})
	if err != nil {
		c.log.Error("Marshal init payload", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.transport == nil {
		return
	}
	c.connected = true

	reply := &Message{Event: EventInitConfig, Payload: initPayload}
	if err := c.transport.WriteJSON(reply); err != nil {
		c.log.Error("Send init.config", err)
		c.connected = false
		return
	}
	c.log.Info("Handshake complete", "queued", len(c.queue))

	// 按入队顺序冲刷
	for len(c.queue) > 0 {
		next := c.queue[0]
		if err := c.transport.WriteJSON(next); err != nil {
			c.log.Error("Flush queued message", err, "event", string(next.Event))
			return
		}
		c.queue = c.queue[1:]
	}
}

// handleRequest 处理对端请求，回送应答
func (c *Channel) handleRequest(msg *Message) {
	c.mu.Lock()
	h, ok := c.reqHandlers[msg.Event]
	c.mu.Unlock()

	reply := &Message{ChannelID: msg.ChannelID}
	success := false
	if !ok {
		reply.Error = fmt.Sprintf("unhandled event %q", msg.Event)
	} else {
		result, err := c.invokeRequestHandler(msg.Event, h, msg.Payload)
		if err != nil {
			reply.Error = err.Error()
		} else if raw, merr := marshalPayload(result); merr != nil {
			reply.Error = merr.Error()
		} else {
			reply.Payload = raw
			success = true
		}
	}
	reply.Success = &success

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.transport == nil {
		return
	}
	if err := c.transport.WriteJSON(reply); err != nil {
		c.log.Error("Send reply", err, "channel_id", msg.ChannelID)
	}
}

func (c *Channel) invokeHandler(event Event, h Handler, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Event handler panicked", fmt.Errorf("%v", r), "event", string(event))
		}
	}()
	h(payload)
}

func (c *Channel) invokeRequestHandler(event Event, h RequestHandler, payload json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Request handler panicked", fmt.Errorf("%v", r), "event", string(event))
			result, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(payload)
}

// Close 关闭通道，拒绝所有在途请求并清空待发队列
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	t := c.transport
	c.transport = nil
	pending := c.pending
	c.pending = make(map[string]chan *Message)
	c.queue = nil
	c.mu.Unlock()

	failed := false
	for id, ch := range pending {
		ch <- &Message{ChannelID: id, Success: &failed, Error: "bridge channel closed"}
	}

	if t != nil {
		return t.Close()
	}
	return nil
}
