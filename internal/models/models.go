package models

import (
	"encoding/json"
	"time"
)

// IotType IoT 设备类型
type IotType string

const (
	// IotTypeIot 电力设备
	IotTypeIot IotType = "iot"
	// IotTypeCamera 摄像头设备
	IotTypeCamera IotType = "camera"
	// IotTypeOthers 未识别类型
	IotTypeOthers IotType = "others"
)

// DeviceState 设备状态
type DeviceState int

const (
	// StateNormal 正常状态
	StateNormal DeviceState = 0
	// StateError 异常状态
	StateError DeviceState = 1
)

// String 设备状态描述
func (s DeviceState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// CameraMode 摄像头播放方式
type CameraMode int

const (
	// CameraModeVOD 点播
	CameraModeVOD CameraMode = 0
	// CameraModeLive 直播
	CameraModeLive CameraMode = 1
)

// DisplayMode 2D 物品的空间展示方式
type DisplayMode int

const (
	// DisplayModeCanvas 贴在空间中的文本（Canvas 渲染）
	DisplayModeCanvas DisplayMode = 0
	// DisplayModeCSS3D 贴在空间中的仪表盘（CSS3D 渲染）
	DisplayModeCSS3D DisplayMode = 1
)

// DefaultKeywordSeparator 默认的关键字分隔符
const DefaultKeywordSeparator = "_"

// Vector3 空间坐标
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion 空间旋转四元数
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// TitleInfo 热点标题信息
type TitleInfo struct {
	Text string `json:"text"`
}

// TagContent 热点内容
type TagContent struct {
	Type      string    `json:"type"`
	TitleInfo TitleInfo `json:"title_info"`
}

// RawTag 场景编辑器产出的热点原始数据
type RawTag struct {
	ID         string     `json:"id"`
	UUID       string     `json:"uuid"`
	Keyword    string     `json:"keyword"`
	SceneID    string     `json:"scene_id"`
	LocationID string     `json:"location_id"`
	Position   Vector3    `json:"position"`
	Rotation   Quaternion `json:"rotation"`
	Content    TagContent `json:"content"`
}

// RawPut2d 场景编辑器产出的 2D 物品原始数据
// Width/Height 以毫米存储，解析时换算为米
type RawPut2d struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	SceneID          string     `json:"scene_id"`
	LocationID       string     `json:"location_id"`
	Position         Vector3    `json:"position"`
	CameraPosition3D Vector3    `json:"camera_position_3d"`
	Quaternion       Quaternion `json:"quaternion"`
	CameraQuat3D     Quaternion `json:"camera_quaternion_3d"`
	Scale            Vector3    `json:"scale"`
	Width            float64    `json:"width"`
	Height           float64    `json:"height"`
}

// IotData 从关键字解析出的设备描述
type IotData struct {
	Type     IotType     `json:"type"`
	DeviceID string      `json:"device_id"`
	Name     string      `json:"name"`
	IsIotTag bool        `json:"is_iot_tag"`
	Mode     CameraMode  `json:"mode,omitempty"`  // 仅 camera
	State    DeviceState `json:"state,omitempty"` // 仅 iot
}

// TaggedDevice 分类后的热点记录
type TaggedDevice struct {
	Tag      RawTag  `json:"tag"`
	IotData  IotData `json:"iot_data"`
	IsIotTag bool    `json:"is_iot_tag"`
}

// Put2dDevice 分类后的 2D 物品记录
type Put2dDevice struct {
	ID           string      `json:"id"`
	DeviceID     string      `json:"device_id"`
	Type         IotType     `json:"type"`
	Mode         DisplayMode `json:"mode"`
	LocationID   string      `json:"location_id,omitempty"`
	Position     Vector3     `json:"position"`
	Position3D   Vector3     `json:"position_3d"`
	Quaternion   Quaternion  `json:"quaternion"`
	Quaternion3D Quaternion  `json:"quaternion_3d"`
	Scale        Vector3     `json:"scale"`
	Width        float64     `json:"width"`  // 米
	Height       float64     `json:"height"` // 米
}

// Scene 场景模型
type Scene struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	ModelID   string    `json:"model_id" db:"model_id"`
	Mode      string    `json:"mode" db:"mode"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Telemetry 设备遥测数据（六项额定指标）
type Telemetry struct {
	RatedVoltage    float64 `json:"ratedVoltage"`
	RatedCurrent    float64 `json:"ratedCurrent"`
	RatedPower      float64 `json:"ratedPower"`
	RatedFrequency  float64 `json:"ratedFrequency"`
	RatedSpeed      float64 `json:"ratedSpeed"`
	MechanicalRatio float64 `json:"mechanicalRatio"`
}

// Field 按字段名取值
func (t Telemetry) Field(name string) (float64, bool) {
	switch name {
	case "ratedVoltage":
		return t.RatedVoltage, true
	case "ratedCurrent":
		return t.RatedCurrent, true
	case "ratedPower":
		return t.RatedPower, true
	case "ratedFrequency":
		return t.RatedFrequency, true
	case "ratedSpeed":
		return t.RatedSpeed, true
	case "mechanicalRatio":
		return t.MechanicalRatio, true
	default:
		return 0, false
	}
}

// AlarmPayload 北向报警载荷
type AlarmPayload struct {
	DeviceID    string    `json:"device_id"`
	FieldName   string    `json:"field_name"`
	ActualValue float64   `json:"actual_value"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Unit        string    `json:"unit"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// StatePayload 北向状态变更载荷
type StatePayload struct {
	DeviceID  string      `json:"device_id"`
	State     DeviceState `json:"state"`
	StateDesc string      `json:"state_desc"`
	ChangedAt time.Time   `json:"changed_at"`
}

// SceneDocument 场景导入文档（编辑器导出的 JSON）
type SceneDocument struct {
	Scene  Scene      `json:"scene"`
	Tags   []RawTag   `json:"tags"`
	Put2ds []RawPut2d `json:"put2ds"`
}

// UnmarshalSceneDocument 解析场景导入文档
func UnmarshalSceneDocument(data []byte) (*SceneDocument, error) {
	doc := &SceneDocument{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
