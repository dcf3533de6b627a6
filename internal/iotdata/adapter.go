package iotdata

import (
	"strconv"
	"strings"

	"github.com/qverse/iotbridge/internal/logger"
	"github.com/qverse/iotbridge/internal/models"
)

// AdapterOptions 关键字解析选项
type AdapterOptions struct {
	// Separator 关键字分隔符，空串时使用默认值
	Separator string
	// StateFromKeyword 是否从关键字第三段解析设备状态
	// 关闭时 iot 设备状态恒为正常，由遥测轮询更新。
	StateFromKeyword bool
}

// Adapter 热点关键字解析器
// 关键字形如 "iot_CV-05126" / "camera_C-01_1"：首段分类，
// 次段为设备ID，第三段按分类解释为相机模式或设备状态。
type Adapter struct {
	separator        string
	stateFromKeyword bool
	log              *logger.Logger
}

// NewAdapter 创建关键字解析器
func NewAdapter(opts AdapterOptions) *Adapter {
	sep := opts.Separator
	if sep == "" {
		sep = models.DefaultKeywordSeparator
	}
	return &Adapter{
		separator:        sep,
		stateFromKeyword: opts.StateFromKeyword,
		log:              logger.WithModule("iotdata.adapter"),
	}
}

// ParseKeyword 按分隔符拆分关键字
// 空白关键字返回空切片并记录日志，不会报错。
func (a *Adapter) ParseKeyword(keyword string) []string {
	trimmed := strings.TrimSpace(keyword)
	if trimmed == "" {
		a.log.Debug("Empty keyword")
		return []string{}
	}
	return strings.Split(trimmed, a.separator)
}

// ExtractIotType 解析关键字首段的设备分类
// 未识别的分类归入 others。
func (a *Adapter) ExtractIotType(keyword string) models.IotType {
	parts := a.ParseKeyword(keyword)
	if len(parts) == 0 {
		return models.IotTypeOthers
	}
	switch models.IotType(strings.ToLower(parts[0])) {
	case models.IotTypeIot:
		return models.IotTypeIot
	case models.IotTypeCamera:
		return models.IotTypeCamera
	default:
		return models.IotTypeOthers
	}
}

// ExtractDeviceID 解析关键字次段的设备ID，缺失时返回空串
func (a *Adapter) ExtractDeviceID(keyword string) string {
	parts := a.ParseKeyword(keyword)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// ExtractCameraMode 解析相机关键字第三段的视频模式
// 缺失或不可解析时回退为点播模式。
func (a *Adapter) ExtractCameraMode(keyword string) models.CameraMode {
	parts := a.ParseKeyword(keyword)
	if len(parts) < 3 {
		return models.CameraModeVOD
	}
	mode, err := strconv.Atoi(parts[2])
	if err != nil {
		a.log.Warn("Invalid camera mode segment", "keyword", keyword, "segment", parts[2])
		return models.CameraModeVOD
	}
	switch models.CameraMode(mode) {
	case models.CameraModeLive:
		return models.CameraModeLive
	default:
		return models.CameraModeVOD
	}
}

// extractDeviceState 解析 iot 关键字第三段的设备状态
func (a *Adapter) extractDeviceState(keyword string) models.DeviceState {
	if !a.stateFromKeyword {
		return models.StateNormal
	}
	parts := a.ParseKeyword(keyword)
	if len(parts) < 3 {
		return models.StateNormal
	}
	state, err := strconv.Atoi(parts[2])
	if err != nil {
		a.log.Warn("Invalid state segment", "keyword", keyword, "segment", parts[2])
		return models.StateNormal
	}
	switch models.DeviceState(state) {
	case models.StateError:
		return models.StateError
	default:
		return models.StateNormal
	}
}

// ParseIotData 解析关键字为设备描述
func (a *Adapter) ParseIotData(keyword string) models.IotData {
	iotType := a.ExtractIotType(keyword)
	data := models.IotData{
		Type:     iotType,
		DeviceID: a.ExtractDeviceID(keyword),
		IsIotTag: iotType != models.IotTypeOthers,
	}
	data.Name = data.DeviceID

	switch iotType {
	case models.IotTypeCamera:
		data.Mode = a.ExtractCameraMode(keyword)
	case models.IotTypeIot:
		data.State = a.extractDeviceState(keyword)
	}
	return data
}

// ValidateIotData 检查设备描述是否可用于联动
func (a *Adapter) ValidateIotData(data models.IotData) bool {
	if !data.IsIotTag {
		return false
	}
	return data.DeviceID != ""
}

// ProcessTagList 批量解析热点列表
// 逐条容错：单条解析不会让整批失败。
func (a *Adapter) ProcessTagList(tags []models.RawTag) []models.TaggedDevice {
	result := make([]models.TaggedDevice, 0, len(tags))
	for _, tag := range tags {
		data := a.ParseIotData(tag.Keyword)
		result = append(result, models.TaggedDevice{
			Tag:      tag,
			IotData:  data,
			IsIotTag: data.IsIotTag,
		})
	}
	return result
}

// ExtractDisplayMode 解析 2D 物品标题第三段的显示模式
// 缺失或不可解析时回退为画布渲染。
func (a *Adapter) ExtractDisplayMode(title string) models.DisplayMode {
	parts := a.ParseKeyword(title)
	if len(parts) < 3 {
		return models.DisplayModeCanvas
	}
	mode, err := strconv.Atoi(parts[2])
	if err != nil {
		a.log.Warn("Invalid display mode segment", "title", title, "segment", parts[2])
		return models.DisplayModeCanvas
	}
	switch models.DisplayMode(mode) {
	case models.DisplayModeCSS3D:
		return models.DisplayModeCSS3D
	default:
		return models.DisplayModeCanvas
	}
}

// FormatPut2d 解析单个 2D 物品，宽高由毫米换算为米
func (a *Adapter) FormatPut2d(raw models.RawPut2d) models.Put2dDevice {
	return models.Put2dDevice{
		ID:           raw.ID,
		DeviceID:     a.ExtractDeviceID(raw.Title),
		Type:         a.ExtractIotType(raw.Title),
		Mode:         a.ExtractDisplayMode(raw.Title),
		LocationID:   raw.LocationID,
		Position:     raw.Position,
		Position3D:   raw.CameraPosition3D,
		Quaternion:   raw.Quaternion,
		Quaternion3D: raw.CameraQuat3D,
		Scale:        raw.Scale,
		Width:        raw.Width / 1000,
		Height:       raw.Height / 1000,
	}
}

// ProcessPut2dList 批量解析 2D 物品列表
func (a *Adapter) ProcessPut2dList(put2ds []models.RawPut2d) []models.Put2dDevice {
	result := make([]models.Put2dDevice, 0, len(put2ds))
	for _, raw := range put2ds {
		result = append(result, a.FormatPut2d(raw))
	}
	return result
}
