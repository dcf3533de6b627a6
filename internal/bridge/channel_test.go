package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/qverse/iotbridge/internal/errors"
)

// fakeTransport 记录写出报文的测试传输层
type fakeTransport struct {
	mu     sync.Mutex
	writes []Message
	closed bool
}

func (t *fakeTransport) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, msg)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.writes))
	copy(out, t.writes)
	return out
}

func connectedChannel(t *testing.T, cfg Config) (*Channel, *fakeTransport) {
	t.Helper()
	ch := NewChannel(cfg)
	ft := &fakeTransport{}
	if err := ch.Attach(ft, cfg.PeerOrigin); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	ch.Dispatch(&Message{Event: EventBridgeInit})
	if !ch.Connected() {
		t.Fatal("channel should be connected after handshake")
	}
	return ch, ft
}

func TestHandshakeSendsInitConfig(t *testing.T) {
	cfg := Config{
		HostOrigin: "https://host.example.com",
		HostConfig: json.RawMessage(`{"theme":"dark"}`),
	}
	_, ft := connectedChannel(t, cfg)

	msgs := ft.messages()
	if len(msgs) != 1 {
		t.Fatalf("writes = %d, want 1", len(msgs))
	}
	if msgs[0].Event != EventInitConfig {
		t.Errorf("event = %q, want init.config", msgs[0].Event)
	}

	var payload InitPayload
	if err := json.Unmarshal(msgs[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Info.Origin != "https://host.example.com" {
		t.Errorf("origin = %q", payload.Info.Origin)
	}
	if string(payload.Config) != `{"theme":"dark"}` {
		t.Errorf("config = %s", payload.Config)
	}
}

func TestQueueFlushedInOrderOnHandshake(t *testing.T) {
	ch := NewChannel(Config{})

	for _, event := range []Event{EventGuidePlay, EventGuidePause, EventGuideBarShow} {
		if err := ch.Send(event, nil); err != nil {
			t.Fatalf("Send(%s): %v", event, err)
		}
	}

	ft := &fakeTransport{}
	if err := ch.Attach(ft, ""); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	ch.Dispatch(&Message{Event: EventBridgeInit})

	msgs := ft.messages()
	want := []Event{EventInitConfig, EventGuidePlay, EventGuidePause, EventGuideBarShow}
	if len(msgs) != len(want) {
		t.Fatalf("writes = %d, want %d", len(msgs), len(want))
	}
	for i, event := range want {
		if msgs[i].Event != event {
			t.Errorf("write[%d] = %q, want %q", i, msgs[i].Event, event)
		}
	}
}

func TestSendQueueLimit(t *testing.T) {
	ch := NewChannel(Config{SendQueueLimit: 2})

	if err := ch.Send(EventGuidePlay, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := ch.Send(EventGuidePause, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := ch.Send(EventGuideBarShow, nil); err == nil {
		t.Error("send over queue limit should fail")
	}
}

func TestRequestResolvedBySuccessReply(t *testing.T) {
	ch, ft := connectedChannel(t, Config{})

	done := make(chan struct{})
	var result json.RawMessage
	var reqErr error
	go func() {
		defer close(done)
		result, reqErr = ch.Request(context.Background(), EventTagGetTags, nil)
	}()

	channelID := waitForRequest(t, ft, EventTagGetTags)
	ok := true
	ch.Dispatch(&Message{ChannelID: channelID, Success: &ok, Payload: json.RawMessage(`[{"id":1}]`)})

	<-done
	if reqErr != nil {
		t.Fatalf("Request: %v", reqErr)
	}
	if string(result) != `[{"id":1}]` {
		t.Errorf("result = %s", result)
	}
}

func TestRequestRejectedByFailureReply(t *testing.T) {
	ch, ft := connectedChannel(t, Config{})

	done := make(chan struct{})
	var reqErr error
	go func() {
		defer close(done)
		_, reqErr = ch.Request(context.Background(), EventSceneGetScenes, nil)
	}()

	channelID := waitForRequest(t, ft, EventSceneGetScenes)
	ok := false
	ch.Dispatch(&Message{ChannelID: channelID, Success: &ok, Error: "scene list unavailable"})

	<-done
	if reqErr == nil || reqErr.Error() != "scene list unavailable" {
		t.Errorf("err = %v", reqErr)
	}
}

func TestRequestTimeout(t *testing.T) {
	ch, _ := connectedChannel(t, Config{RequestTimeout: 30 * time.Millisecond})

	start := time.Now()
	_, err := ch.Request(context.Background(), EventTagGetTags, nil)
	if err == nil {
		t.Fatal("request without reply should time out")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeTimeout {
		t.Errorf("err = %v, want timeout code", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestUnknownChannelIDReplyLeavesPending(t *testing.T) {
	ch, ft := connectedChannel(t, Config{})

	type outcome struct {
		result json.RawMessage
		err    error
	}
	tagsCh := make(chan outcome, 1)
	scenesCh := make(chan outcome, 1)

	go func() {
		r, err := ch.Request(context.Background(), EventTagGetTags, nil)
		tagsCh <- outcome{r, err}
	}()
	go func() {
		r, err := ch.Request(context.Background(), EventSceneGetScenes, nil)
		scenesCh <- outcome{r, err}
	}()

	tagsID := waitForRequest(t, ft, EventTagGetTags)
	scenesID := waitForRequest(t, ft, EventSceneGetScenes)

	// 无人认领的应答被丢弃，在途请求不受影响
	ok := true
	ch.Dispatch(&Message{ChannelID: "requestId_bogus", Success: &ok, Payload: json.RawMessage(`"stale"`)})

	select {
	case out := <-tagsCh:
		t.Fatalf("tags request settled by bogus reply: %s, %v", out.result, out.err)
	case out := <-scenesCh:
		t.Fatalf("scenes request settled by bogus reply: %s, %v", out.result, out.err)
	case <-time.After(50 * time.Millisecond):
	}

	ch.Dispatch(&Message{ChannelID: tagsID, Success: &ok, Payload: json.RawMessage(`"tags"`)})
	ch.Dispatch(&Message{ChannelID: scenesID, Success: &ok, Payload: json.RawMessage(`"scenes"`)})

	tags := <-tagsCh
	scenes := <-scenesCh
	if tags.err != nil || string(tags.result) != `"tags"` {
		t.Errorf("tags outcome = %s, %v", tags.result, tags.err)
	}
	if scenes.err != nil || string(scenes.result) != `"scenes"` {
		t.Errorf("scenes outcome = %s, %v", scenes.result, scenes.err)
	}
}

func TestConcurrentRequestsResolveIndependently(t *testing.T) {
	ch, ft := connectedChannel(t, Config{})

	type outcome struct {
		result json.RawMessage
		err    error
	}
	tagsCh := make(chan outcome, 1)
	scenesCh := make(chan outcome, 1)

	go func() {
		r, err := ch.Request(context.Background(), EventTagGetTags, nil)
		tagsCh <- outcome{r, err}
	}()
	go func() {
		r, err := ch.Request(context.Background(), EventSceneGetScenes, nil)
		scenesCh <- outcome{r, err}
	}()

	tagsID := waitForRequest(t, ft, EventTagGetTags)
	scenesID := waitForRequest(t, ft, EventSceneGetScenes)
	if tagsID == scenesID {
		t.Fatal("correlation ids should be distinct")
	}

	// 乱序应答
	ok := true
	ch.Dispatch(&Message{ChannelID: scenesID, Success: &ok, Payload: json.RawMessage(`"scenes"`)})
	ch.Dispatch(&Message{ChannelID: tagsID, Success: &ok, Payload: json.RawMessage(`"tags"`)})

	tags := <-tagsCh
	scenes := <-scenesCh
	if tags.err != nil || string(tags.result) != `"tags"` {
		t.Errorf("tags outcome = %s, %v", tags.result, tags.err)
	}
	if scenes.err != nil || string(scenes.result) != `"scenes"` {
		t.Errorf("scenes outcome = %s, %v", scenes.result, scenes.err)
	}
}

func TestAttachRejectsWrongOrigin(t *testing.T) {
	ch := NewChannel(Config{PeerOrigin: "https://panorama.example.com"})
	err := ch.Attach(&fakeTransport{}, "https://evil.example.com")
	if err == nil {
		t.Fatal("mismatched origin should be rejected")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.ErrCodeForbidden {
		t.Errorf("err = %v, want forbidden code", err)
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	ch, _ := connectedChannel(t, Config{})
	ch.On(EventSceneSwitch, func(json.RawMessage) {
		panic("boom")
	})
	called := false
	ch.On(EventSceneSwitch, func(json.RawMessage) {
		called = true
	})

	// 前一个处理函数崩溃不应中断后续处理函数
	ch.Dispatch(&Message{Event: EventSceneSwitch})
	if !called {
		t.Error("second handler not invoked after first panicked")
	}
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	ch, _ := connectedChannel(t, Config{})

	var order []int
	ch.On(EventSceneSwitch, func(json.RawMessage) { order = append(order, 1) })
	id := ch.On(EventSceneSwitch, func(json.RawMessage) { order = append(order, 2) })
	ch.On(EventSceneSwitch, func(json.RawMessage) { order = append(order, 3) })

	ch.Dispatch(&Message{Event: EventSceneSwitch})
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("handler order = %v", order)
	}

	order = nil
	ch.Off(EventSceneSwitch, id)
	ch.Dispatch(&Message{Event: EventSceneSwitch})
	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Fatalf("after Off order = %v", order)
	}
}

func TestOnRequestRepliesToPeer(t *testing.T) {
	ch, ft := connectedChannel(t, Config{})
	ch.OnRequest(EventTagGetTags, func(json.RawMessage) (interface{}, error) {
		return []string{"a", "b"}, nil
	})

	ch.Dispatch(&Message{Event: EventTagGetTags, ChannelID: "requestId_x"})

	msgs := ft.messages()
	last := msgs[len(msgs)-1]
	if last.ChannelID != "requestId_x" || last.Success == nil || !*last.Success {
		t.Fatalf("reply = %+v", last)
	}
	if string(last.Payload) != `["a","b"]` {
		t.Errorf("payload = %s", last.Payload)
	}
}

func TestCloseRejectsPending(t *testing.T) {
	ch, ft := connectedChannel(t, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := ch.Request(context.Background(), EventTagGetTags, nil)
		done <- err
	}()
	waitForRequest(t, ft, EventTagGetTags)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := <-done; err == nil {
		t.Error("pending request should be rejected on close")
	}
	if err := ch.Send(EventGuidePlay, nil); !errors.Is(err, apperrors.ErrBridgeClosed) {
		t.Errorf("send after close: err = %v", err)
	}
}

// waitForRequest 等待指定事件的请求报文写出并返回其channelId
func waitForRequest(t *testing.T, ft *fakeTransport, event Event) string {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range ft.messages() {
			if msg.Event == event && msg.ChannelID != "" {
				return msg.ChannelID
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("request %q not written", event)
	return ""
}
