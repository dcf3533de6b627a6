package iotdata

import (
	"sync"

	"github.com/qverse/iotbridge/internal/logger"
	"github.com/qverse/iotbridge/internal/models"
)

// typedTagDataCacheKey 分类聚合结果的缓存键
const typedTagDataCacheKey = "typedTagData"

// Manager 场景物联数据管理器
// 持有当前场景的热点与2D物品解析结果，维护设备ID与热点ID
// 的双向映射，分类聚合结果经LRU缓存加速。
type Manager struct {
	adapter *Adapter
	cache   *Cache
	log     *logger.Logger

	mu         sync.RWMutex
	tags       []models.TaggedDevice
	put2ds     []models.Put2dDevice
	idMap      map[string]string // deviceID -> tagID
	tagIDMap   map[string]string // tagID -> deviceID
	pluginData map[string]interface{}
}

// NewManager 创建数据管理器
func NewManager(adapter *Adapter, cache *Cache) *Manager {
	if adapter == nil {
		adapter = NewAdapter(AdapterOptions{})
	}
	if cache == nil {
		cache = NewCache(DefaultCacheConfig())
	}
	return &Manager{
		adapter:    adapter,
		cache:      cache,
		log:        logger.WithModule("iotdata.manager"),
		idMap:      make(map[string]string),
		tagIDMap:   make(map[string]string),
		pluginData: make(map[string]interface{}),
	}
}

// SetSceneIotData 载入场景数据并重建映射
// 重复载入覆盖旧数据；分类聚合缓存随之失效。
func (m *Manager) SetSceneIotData(tags []models.RawTag, put2ds []models.RawPut2d) {
	tagged := m.adapter.ProcessTagList(tags)
	formatted := m.adapter.ProcessPut2dList(put2ds)

	idMap := make(map[string]string)
	tagIDMap := make(map[string]string)
	for _, device := range tagged {
		if !device.IsIotTag || device.IotData.DeviceID == "" {
			continue
		}
		// 双向映射成对维护
		idMap[device.IotData.DeviceID] = device.Tag.ID
		tagIDMap[device.Tag.ID] = device.IotData.DeviceID
	}

	m.mu.Lock()
	m.tags = tagged
	m.put2ds = formatted
	m.idMap = idMap
	m.tagIDMap = tagIDMap
	// 挂载数据随场景一同重置
	m.pluginData = make(map[string]interface{})
	m.mu.Unlock()

	m.cache.Delete(typedTagDataCacheKey)
	m.log.Info("Scene data loaded", "tags", len(tagged), "put2ds", len(formatted), "devices", len(idMap))
}

// ParseIotData 解析单个关键字
func (m *Manager) ParseIotData(keyword string) models.IotData {
	return m.adapter.ParseIotData(keyword)
}

// GetTagDeviceListByIotType 按分类筛选热点列表
func (m *Manager) GetTagDeviceListByIotType(iotType models.IotType) []models.TaggedDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.TaggedDevice, 0)
	for _, device := range m.tags {
		if device.IotData.Type == iotType {
			result = append(result, device)
		}
	}
	return result
}

// GetTypedTagData 按分类聚合热点列表，结果走缓存
func (m *Manager) GetTypedTagData() map[models.IotType][]models.TaggedDevice {
	if cached, ok := m.cache.Get(typedTagDataCacheKey); ok {
		if typed, ok := cached.(map[models.IotType][]models.TaggedDevice); ok {
			return typed
		}
	}

	m.mu.RLock()
	typed := make(map[models.IotType][]models.TaggedDevice)
	for _, device := range m.tags {
		typed[device.IotData.Type] = append(typed[device.IotData.Type], device)
	}
	m.mu.RUnlock()

	m.cache.Set(typedTagDataCacheKey, typed)
	return typed
}

// GetIotIdMap 设备ID到热点ID的映射副本
func (m *Manager) GetIotIdMap() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyStringMap(m.idMap)
}

// GetIotTagIdMap 热点ID到设备ID的映射副本
func (m *Manager) GetIotTagIdMap() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyStringMap(m.tagIDMap)
}

// GetTagIDByDeviceID 按设备ID查热点ID
func (m *Manager) GetTagIDByDeviceID(deviceID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tagID, ok := m.idMap[deviceID]
	return tagID, ok
}

// GetDeviceIDByTagID 按热点ID查设备ID
func (m *Manager) GetDeviceIDByTagID(tagID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	deviceID, ok := m.tagIDMap[tagID]
	return deviceID, ok
}

// GetTagIotType 查询热点的设备分类，未知热点归入 others
func (m *Manager) GetTagIotType(tagID string) models.IotType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, device := range m.tags {
		if device.Tag.ID == tagID {
			return device.IotData.Type
		}
	}
	return models.IotTypeOthers
}

// GetIotTagList 物联热点列表（iot与camera）
func (m *Manager) GetIotTagList() []models.TaggedDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.TaggedDevice, 0)
	for _, device := range m.tags {
		if device.IsIotTag {
			result = append(result, device)
		}
	}
	return result
}

// GetNormalTagList 普通热点列表（others）
func (m *Manager) GetNormalTagList() []models.TaggedDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.TaggedDevice, 0)
	for _, device := range m.tags {
		if !device.IsIotTag {
			result = append(result, device)
		}
	}
	return result
}

// GetFormattedTagList 全部热点解析结果
func (m *Manager) GetFormattedTagList() []models.TaggedDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.TaggedDevice, len(m.tags))
	copy(result, m.tags)
	return result
}

// GetDeviceListByDisplayType 按显示模式筛选2D物品
func (m *Manager) GetDeviceListByDisplayType(mode models.DisplayMode) []models.Put2dDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Put2dDevice, 0)
	for _, device := range m.put2ds {
		if device.Mode == mode {
			result = append(result, device)
		}
	}
	return result
}

// GetPut2dList 全部2D物品解析结果
func (m *Manager) GetPut2dList() []models.Put2dDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.Put2dDevice, len(m.put2ds))
	copy(result, m.put2ds)
	return result
}

// SetTagPluginData 记录热点的挂载数据
// 场景重载时清空。
func (m *Manager) SetTagPluginData(tagID string, data interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pluginData[tagID] = data
}

// GetTagPluginData 查询热点的挂载数据
func (m *Manager) GetTagPluginData(tagID string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.pluginData[tagID]
	return data, ok
}

// CacheConfig 当前缓存配置
func (m *Manager) CacheConfig() CacheConfig {
	return m.cache.Config()
}

// SetCacheConfig 更新缓存配置
func (m *Manager) SetCacheConfig(cfg CacheConfig) {
	m.cache.SetConfig(cfg)
}

// ClearCache 清空缓存
func (m *Manager) ClearCache() {
	m.cache.Clear()
}

func copyStringMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
