package bridge

// Event 桥接通道事件名
type Event string

// 发送方向事件
const (
	EventTagFlyTo       Event = "tag.fly.to"
	EventTagGetTags     Event = "tag.get.tags"
	EventSceneSwitch    Event = "scene.switch"
	EventSceneGetScenes Event = "scene.get.scenes"
	EventModeSwitch     Event = "mode.switch"
	EventInitConfig     Event = "init.config"
	EventGuidePlay      Event = "guide.play"
	EventGuidePause     Event = "guide.pause"
	EventGuideBarShow   Event = "guide.bar.show"
	EventGuideBarHide   Event = "guide.bar.hide"
)

// 接收方向事件
const (
	EventBridgeInit Event = "bridge.init"
)
