package northbound

import (
	"context"
	"sync"

	"github.com/qverse/iotbridge/internal/logger"
	"github.com/qverse/iotbridge/internal/models"
)

// Adapter 北向上报适配器
type Adapter interface {
	// Name 适配器名称
	Name() string
	// Initialize 建立到北向平台的连接
	Initialize() error
	// SendState 上报设备状态变更
	SendState(payload models.StatePayload) error
	// SendAlarm 上报阈值越限报警
	SendAlarm(payload models.AlarmPayload) error
	// Close 释放连接
	Close() error
}

// Manager 北向适配器注册表
// 广播时逐个适配器容错：单个失败只记录日志。
type Manager struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	log      *logger.Logger
}

// NewManager 创建适配器注册表
func NewManager() *Manager {
	return &Manager{
		adapters: make(map[string]Adapter),
		log:      logger.WithModule("northbound"),
	}
}

// Register 注册适配器，重名覆盖
func (m *Manager) Register(adapter Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters[adapter.Name()] = adapter
	m.log.Info("Adapter registered", "name", adapter.Name())
}

// InitializeAll 初始化全部适配器，失败的适配器被移除
func (m *Manager) InitializeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, adapter := range m.adapters {
		if err := adapter.Initialize(); err != nil {
			m.log.Error("Adapter initialization failed, removing", err, "name", name)
			delete(m.adapters, name)
		}
	}
}

// BroadcastState 向全部适配器上报状态变更
func (m *Manager) BroadcastState(payload models.StatePayload) {
	for _, adapter := range m.snapshot() {
		if err := adapter.SendState(payload); err != nil {
			m.log.Warn("State report failed", "adapter", adapter.Name(),
				"device_id", payload.DeviceID, "error", err.Error())
		}
	}
}

// BroadcastAlarm 向全部适配器上报报警
func (m *Manager) BroadcastAlarm(payload models.AlarmPayload) {
	for _, adapter := range m.snapshot() {
		if err := adapter.SendAlarm(payload); err != nil {
			m.log.Warn("Alarm report failed", "adapter", adapter.Name(),
				"device_id", payload.DeviceID, "error", err.Error())
		}
	}
}

// Names 已注册的适配器名称
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	return names
}

// Shutdown 关闭全部适配器
func (m *Manager) Shutdown(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, adapter := range m.adapters {
		if err := adapter.Close(); err != nil {
			m.log.Error("Adapter close failed", err, "name", name)
		}
		delete(m.adapters, name)
	}
	return nil
}

func (m *Manager) snapshot() []Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	adapters := make([]Adapter, 0, len(m.adapters))
	for _, adapter := range m.adapters {
		adapters = append(adapters, adapter)
	}
	return adapters
}
