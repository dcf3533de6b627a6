package bridge

import "encoding/json"

// Message 桥接通道线上报文
// 普通事件只带 event/payload；请求报文额外带 channelId；
// 应答报文带 channelId 和 success，payload 或 error 二选一。
type Message struct {
	Event     Event           `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ChannelID string          `json:"channelId,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// IsReply 报文是否为请求应答
func (m *Message) IsReply() bool {
	return m.ChannelID != "" && m.Success != nil
}

// InitInfo 握手应答中的宿主信息
type InitInfo struct {
	Origin string `json:"origin"`
}

// InitPayload 握手应答负载
type InitPayload struct {
	Info   InitInfo        `json:"info"`
	Config json.RawMessage `json:"config,omitempty"`
}

func newEventMessage(event Event, payload interface{}) (*Message, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Event: event, Payload: raw}, nil
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(payload)
}
