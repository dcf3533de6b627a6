package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/qverse/iotbridge/internal/auth"
	"github.com/qverse/iotbridge/internal/bridge"
	"github.com/qverse/iotbridge/internal/equipment"
	"github.com/qverse/iotbridge/internal/iotdata"
	"github.com/qverse/iotbridge/internal/logger"
	"github.com/qverse/iotbridge/internal/models"
	"github.com/qverse/iotbridge/internal/scene"
)

// Handlers API路由处理器集合
type Handlers struct {
	store     *scene.Store
	manager   *iotdata.Manager
	equipment *equipment.Service
	channel   *bridge.Channel
	jwt       *auth.JWTManager
	log       *logger.Logger

	tag     *bridge.Tag
	sceneOp *bridge.Scene
	guide   *bridge.Guide
	mode    *bridge.Mode
}

// New 创建处理器集合
func New(store *scene.Store, manager *iotdata.Manager, eq *equipment.Service,
	channel *bridge.Channel, jwt *auth.JWTManager) *Handlers {
	return &Handlers{
		store:     store,
		manager:   manager,
		equipment: eq,
		channel:   channel,
		jwt:       jwt,
		log:       logger.WithModule("handlers"),
		tag:       bridge.NewTag(channel),
		sceneOp:   bridge.NewScene(channel),
		guide:     bridge.NewGuide(channel),
		mode:      bridge.NewMode(channel),
	}
}

// RegisterRoutes 挂载API路由
func (h *Handlers) RegisterRoutes(r *mux.Router, bridgeServer *bridge.Server) {
	r.HandleFunc("/ws/bridge", bridgeServer.ServeHTTP)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(h.jwt.RequireAuth)

	protected.HandleFunc("/scenes/import", h.ImportScene).Methods(http.MethodPost)
	protected.HandleFunc("/scenes", h.ListScenes).Methods(http.MethodGet)
	protected.HandleFunc("/scenes/{id}", h.GetScene).Methods(http.MethodGet)
	protected.HandleFunc("/scenes/{id}", h.DeleteScene).Methods(http.MethodDelete)
	protected.HandleFunc("/scenes/{id}/load", h.LoadScene).Methods(http.MethodPost)

	protected.HandleFunc("/devices", h.ListDevices).Methods(http.MethodGet)
	protected.HandleFunc("/devices/typed", h.TypedDevices).Methods(http.MethodGet)
	protected.HandleFunc("/devices/idmap", h.DeviceIDMap).Methods(http.MethodGet)
	protected.HandleFunc("/devices/tagidmap", h.TagIDMap).Methods(http.MethodGet)
	protected.HandleFunc("/put2ds", h.ListPut2ds).Methods(http.MethodGet)

	protected.HandleFunc("/equipment/states", h.EquipmentStates).Methods(http.MethodGet)
	protected.HandleFunc("/equipment/{id}/telemetry", h.DeviceTelemetry).Methods(http.MethodGet)
	protected.HandleFunc("/equipment/poll/start", h.StartPolling).Methods(http.MethodPost)
	protected.HandleFunc("/equipment/poll/stop", h.StopPolling).Methods(http.MethodPost)

	protected.HandleFunc("/cache/config", h.GetCacheConfig).Methods(http.MethodGet)
	protected.HandleFunc("/cache/config", h.SetCacheConfig).Methods(http.MethodPut)
	protected.HandleFunc("/cache/clear", h.ClearCache).Methods(http.MethodPost)

	protected.HandleFunc("/bridge/tag/flyto", h.TagFlyTo).Methods(http.MethodPost)
	protected.HandleFunc("/bridge/tags", h.BridgeTags).Methods(http.MethodGet)
	protected.HandleFunc("/bridge/scenes", h.BridgeScenes).Methods(http.MethodGet)
	protected.HandleFunc("/bridge/scene/switch", h.SceneSwitch).Methods(http.MethodPost)
	protected.HandleFunc("/bridge/mode/switch", h.ModeSwitch).Methods(http.MethodPost)
	protected.HandleFunc("/bridge/guide/play", h.guideAction(h.guide.Play)).Methods(http.MethodPost)
	protected.HandleFunc("/bridge/guide/pause", h.guideAction(h.guide.Pause)).Methods(http.MethodPost)
	protected.HandleFunc("/bridge/guide/bar/show", h.guideAction(h.guide.ShowBar)).Methods(http.MethodPost)
	protected.HandleFunc("/bridge/guide/bar/hide", h.guideAction(h.guide.HideBar)).Methods(http.MethodPost)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login 用户登录
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := ParseRequest(r, &req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	token, err := h.jwt.Login(w, req.Username, req.Password)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	WriteSuccess(w, map[string]string{"token": token})
}

// Logout 用户登出
func (h *Handlers) Logout(w http.ResponseWriter, _ *http.Request) {
	h.jwt.Logout(w)
	WriteSuccess(w, nil)
}

// ImportScene 导入场景文档
func (h *Handlers) ImportScene(w http.ResponseWriter, r *http.Request) {
	var doc models.SceneDocument
	if err := ParseRequest(r, &doc); err != nil {
		WriteBadRequest(w, "invalid scene document")
		return
	}
	if err := h.store.ImportSceneDocument(&doc); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"scene_id": doc.Scene.ID,
		"tags":     len(doc.Tags),
		"put2ds":   len(doc.Put2ds),
	})
}

// ListScenes 场景列表
func (h *Handlers) ListScenes(w http.ResponseWriter, _ *http.Request) {
	scenes, err := h.store.ListScenes()
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteSuccess(w, scenes)
}

// GetScene 场景详情
func (h *Handlers) GetScene(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sc, err := h.store.GetScene(id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteSuccess(w, sc)
}

// DeleteScene 删除场景
func (h *Handlers) DeleteScene(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.DeleteScene(id); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteSuccess(w, nil)
}

// LoadScene 将场景数据载入解析管理器
func (h *Handlers) LoadScene(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.store.GetScene(id); err != nil {
		WriteAppError(w, err)
		return
	}
	tags, err := h.store.GetHotspotTagSourceList(id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	put2ds, err := h.store.GetPut2dContentSourceList(id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	h.manager.SetSceneIotData(tags, put2ds)
	WriteSuccess(w, map[string]int{"tags": len(tags), "put2ds": len(put2ds)})
}

// ListDevices 设备列表，type 参数可选
func (h *Handlers) ListDevices(w http.ResponseWriter, r *http.Request) {
	iotType := r.URL.Query().Get("type")
	if iotType == "" {
		WriteSuccess(w, h.manager.GetFormattedTagList())
		return
	}
	WriteSuccess(w, h.manager.GetTagDeviceListByIotType(models.IotType(iotType)))
}

// TypedDevices 按分类聚合的设备列表
func (h *Handlers) TypedDevices(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, h.manager.GetTypedTagData())
}

// DeviceIDMap 设备ID到热点ID映射
func (h *Handlers) DeviceIDMap(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, h.manager.GetIotIdMap())
}

// TagIDMap 热点ID到设备ID映射
func (h *Handlers) TagIDMap(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, h.manager.GetIotTagIdMap())
}

// ListPut2ds 2D物品列表，mode 参数可选
func (h *Handlers) ListPut2ds(w http.ResponseWriter, r *http.Request) {
	modeParam := r.URL.Query().Get("mode")
	if modeParam == "" {
		WriteSuccess(w, h.manager.GetPut2dList())
		return
	}
	mode, err := strconv.Atoi(modeParam)
	if err != nil {
		WriteBadRequest(w, "invalid mode")
		return
	}
	WriteSuccess(w, h.manager.GetDeviceListByDisplayType(models.DisplayMode(mode)))
}

// EquipmentStates 设备状态快照
func (h *Handlers) EquipmentStates(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, h.equipment.States())
}

// DeviceTelemetry 设备最近遥测
func (h *Handlers) DeviceTelemetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	telemetry, ok := h.equipment.GetTelemetry(id)
	if !ok {
		WriteNotFound(w, "no telemetry for device")
		return
	}
	WriteSuccess(w, telemetry)
}

// StartPolling 启动全局轮询
func (h *Handlers) StartPolling(w http.ResponseWriter, _ *http.Request) {
	h.equipment.StartGlobalUpdate()
	WriteSuccess(w, map[string]bool{"running": h.equipment.Running()})
}

// StopPolling 停止全局轮询
func (h *Handlers) StopPolling(w http.ResponseWriter, _ *http.Request) {
	h.equipment.StopGlobalUpdate()
	WriteSuccess(w, map[string]bool{"running": h.equipment.Running()})
}

// GetCacheConfig 查询缓存配置
func (h *Handlers) GetCacheConfig(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, h.manager.CacheConfig())
}

// SetCacheConfig 更新缓存配置
func (h *Handlers) SetCacheConfig(w http.ResponseWriter, r *http.Request) {
	var cfg iotdata.CacheConfig
	if err := ParseRequest(r, &cfg); err != nil {
		WriteBadRequest(w, "invalid cache config")
		return
	}
	h.manager.SetCacheConfig(cfg)
	WriteSuccess(w, h.manager.CacheConfig())
}

// ClearCache 清空缓存
func (h *Handlers) ClearCache(w http.ResponseWriter, _ *http.Request) {
	h.manager.ClearCache()
	WriteSuccess(w, nil)
}

// TagFlyTo 触发对端视角飞行
func (h *Handlers) TagFlyTo(w http.ResponseWriter, r *http.Request) {
	var params bridge.FlyToParams
	if err := ParseRequest(r, &params); err != nil {
		WriteBadRequest(w, "invalid flyto params")
		return
	}
	if err := h.tag.FlyTo(params); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteSuccess(w, nil)
}

// BridgeTags 向对端查询当前场景标签
func (h *Handlers) BridgeTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tag.GetTags(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteSuccess(w, tags)
}

// BridgeScenes 向对端查询场景列表
func (h *Handlers) BridgeScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := h.sceneOp.GetScenes(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteSuccess(w, scenes)
}

// SceneSwitch 触发对端场景切换
func (h *Handlers) SceneSwitch(w http.ResponseWriter, r *http.Request) {
	var params bridge.SwitchParams
	if err := ParseRequest(r, &params); err != nil {
		WriteBadRequest(w, "invalid switch params")
		return
	}
	if err := h.sceneOp.Switch(params); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteSuccess(w, nil)
}

// ModeSwitch 触发对端显示模式切换
func (h *Handlers) ModeSwitch(w http.ResponseWriter, r *http.Request) {
	var params bridge.ModeSwitchParams
	if err := ParseRequest(r, &params); err != nil {
		WriteBadRequest(w, "invalid mode params")
		return
	}
	if err := h.mode.Switch(params); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteSuccess(w, nil)
}

func (h *Handlers) guideAction(action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := action(); err != nil {
			WriteAppError(w, err)
			return
		}
		WriteSuccess(w, nil)
	}
}
