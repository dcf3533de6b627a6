package bridge

import (
	"context"
	"encoding/json"

	apperrors "github.com/qverse/iotbridge/internal/errors"
	"github.com/qverse/iotbridge/internal/models"
)

// Tag 标签操作封装
type Tag struct {
	ch *Channel
}

// Scene 场景操作封装
type Scene struct {
	ch *Channel
}

// Guide 导览操作封装
type Guide struct {
	ch *Channel
}

// Mode 显示模式操作封装
type Mode struct {
	ch *Channel
}

// NewTag 创建标签操作封装
func NewTag(ch *Channel) *Tag { return &Tag{ch: ch} }

// NewScene 创建场景操作封装
func NewScene(ch *Channel) *Scene { return &Scene{ch: ch} }

// NewGuide 创建导览操作封装
func NewGuide(ch *Channel) *Guide { return &Guide{ch: ch} }

// NewMode 创建显示模式操作封装
func NewMode(ch *Channel) *Mode { return &Mode{ch: ch} }

// FlyToParams 标签飞行定位参数
type FlyToParams struct {
	TagID   string `json:"tagId"`
	SceneID string `json:"sceneId"`
}

// FlyTo 视角飞行到指定场景中的标签
func (t *Tag) FlyTo(params FlyToParams) error {
	if params.TagID == "" {
		return apperrors.NewError(apperrors.ErrCodeBadRequest, "tagId is required")
	}
	if params.SceneID == "" {
		return apperrors.NewError(apperrors.ErrCodeBadRequest, "sceneId is required")
	}
	return t.ch.Send(EventTagFlyTo, params)
}

// GetTags 查询对端当前场景的标签列表
func (t *Tag) GetTags(ctx context.Context) ([]models.RawTag, error) {
	raw, err := t.ch.Request(ctx, EventTagGetTags, nil)
	if err != nil {
		return nil, err
	}
	var tags []models.RawTag
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &tags); err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrCodeInternalError, "decode tags reply")
		}
	}
	return tags, nil
}

// SwitchParams 场景切换参数
type SwitchParams struct {
	SceneID string `json:"sceneId"`
}

// Switch 切换到指定场景
func (s *Scene) Switch(params SwitchParams) error {
	if params.SceneID == "" {
		return apperrors.NewError(apperrors.ErrCodeBadRequest, "sceneId is required")
	}
	return s.ch.Send(EventSceneSwitch, params)
}

// GetScenes 查询对端场景列表
func (s *Scene) GetScenes(ctx context.Context) ([]models.Scene, error) {
	raw, err := s.ch.Request(ctx, EventSceneGetScenes, nil)
	if err != nil {
		return nil, err
	}
	var scenes []models.Scene
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &scenes); err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrCodeInternalError, "decode scenes reply")
		}
	}
	return scenes, nil
}

// Play 开始导览播放
func (g *Guide) Play() error {
	return g.ch.Send(EventGuidePlay, nil)
}

// Pause 暂停导览播放
func (g *Guide) Pause() error {
	return g.ch.Send(EventGuidePause, nil)
}

// ShowBar 显示导览进度条
func (g *Guide) ShowBar() error {
	return g.ch.Send(EventGuideBarShow, nil)
}

// HideBar 隐藏导览进度条
func (g *Guide) HideBar() error {
	return g.ch.Send(EventGuideBarHide, nil)
}

// ModeSwitchParams 显示模式切换参数
type ModeSwitchParams struct {
	Mode models.DisplayMode `json:"mode"`
}

// Switch 切换显示模式
func (m *Mode) Switch(params ModeSwitchParams) error {
	if params.Mode != models.DisplayModeCanvas && params.Mode != models.DisplayModeCSS3D {
		return apperrors.NewError(apperrors.ErrCodeBadRequest, "unknown display mode")
	}
	return m.ch.Send(EventModeSwitch, params)
}
