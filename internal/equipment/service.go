package equipment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qverse/iotbridge/internal/logger"
	"github.com/qverse/iotbridge/internal/models"
)

// DeviceSource 提供当前需要轮询的设备ID列表
type DeviceSource func() []string

// StateListener 设备状态变更回调
type StateListener func(models.StatePayload)

// AlarmListener 阈值越限回调
type AlarmListener func(models.AlarmPayload)

// DataListener 单设备遥测回调，每次拉取成功都会触发
type DataListener func(models.Telemetry)

// Service 设备遥测轮询服务
// 按固定周期并行拉取全部设备遥测，越限项触发报警回调，
// 设备状态仅在发生跳变时通知监听者。
type Service struct {
	provider Provider
	devices  DeviceSource
	interval time.Duration
	log      *logger.Logger

	mu             sync.Mutex
	running        bool
	stopCh         chan struct{}
	doneCh         chan struct{}
	states         map[string]models.DeviceState
	telemetry      map[string]models.Telemetry
	nextListenerID int
	stateListeners map[int]StateListener
	alarmListeners map[int]AlarmListener
	dataListeners  map[string]map[int]DataListener // deviceID -> listeners
}

// NewService 创建轮询服务
func NewService(provider Provider, devices DeviceSource, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Service{
		provider:       provider,
		devices:        devices,
		interval:       interval,
		log:            logger.WithModule("equipment"),
		states:         make(map[string]models.DeviceState),
		telemetry:      make(map[string]models.Telemetry),
		stateListeners: make(map[int]StateListener),
		alarmListeners: make(map[int]AlarmListener),
		dataListeners:  make(map[string]map[int]DataListener),
	}
}

// AddStateListener 注册状态变更监听，返回监听ID
func (s *Service) AddStateListener(l StateListener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextListenerID++
	s.stateListeners[s.nextListenerID] = l
	return s.nextListenerID
}

// RemoveStateListener 注销状态变更监听
func (s *Service) RemoveStateListener(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stateListeners, id)
}

// AddAlarmListener 注册报警监听，返回监听ID
func (s *Service) AddAlarmListener(l AlarmListener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextListenerID++
	s.alarmListeners[s.nextListenerID] = l
	return s.nextListenerID
}

// RemoveAlarmListener 注销报警监听
func (s *Service) RemoveAlarmListener(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alarmListeners, id)
}

// AddDataListener 注册单设备遥测监听，返回监听ID
func (s *Service) AddDataListener(deviceID string, l DataListener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextListenerID++
	if s.dataListeners[deviceID] == nil {
		s.dataListeners[deviceID] = make(map[int]DataListener)
	}
	s.dataListeners[deviceID][s.nextListenerID] = l
	return s.nextListenerID
}

// RemoveDataListener 注销单设备遥测监听
func (s *Service) RemoveDataListener(deviceID string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if listeners, ok := s.dataListeners[deviceID]; ok {
		delete(listeners, id)
		if len(listeners) == 0 {
			delete(s.dataListeners, deviceID)
		}
	}
}

// StartGlobalUpdate 启动全局轮询
// 已在运行时记录日志直接返回，不会叠加第二个轮询循环。
func (s *Service) StartGlobalUpdate() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Info("Global update already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	s.log.Info("Global update started", "interval", s.interval.String())
	go s.loop(stopCh, doneCh)
}

// StopGlobalUpdate 停止全局轮询并等待循环退出
func (s *Service) StopGlobalUpdate() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	s.log.Info("Global update stopped")
}

// Running 轮询是否在运行
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Shutdown 关闭服务
func (s *Service) Shutdown(_ context.Context) error {
	s.StopGlobalUpdate()
	return nil
}

func (s *Service) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 启动即拉一轮，不等首个周期
	s.UpdateAll(context.Background())
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.UpdateAll(context.Background())
		}
	}
}

// UpdateAll 并行拉取全部设备遥测
// 单设备失败只记录日志，不影响同批其他设备。
func (s *Service) UpdateAll(ctx context.Context) {
	deviceIDs := s.devices()
	if len(deviceIDs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, deviceID := range deviceIDs {
		wg.Add(1)
		go func(deviceID string) {
			defer wg.Done()
			if err := s.UpdateDevice(ctx, deviceID); err != nil {
				s.log.Warn("Device update failed", "device_id", deviceID, "error", err.Error())
			}
		}(deviceID)
	}
	wg.Wait()
}

// UpdateDevice 拉取单个设备遥测并评估阈值
func (s *Service) UpdateDevice(ctx context.Context, deviceID string) error {
	telemetry, err := s.provider.Fetch(ctx, deviceID)
	if err != nil {
		return err
	}

	now := time.Now()
	alarms := CheckThresholds(deviceID, telemetry, now)

	state := models.StateNormal
	if len(alarms) > 0 {
		state = models.StateError
	}

	s.mu.Lock()
	s.telemetry[deviceID] = telemetry
	dataListeners := make([]DataListener, 0, len(s.dataListeners[deviceID]))
	for _, l := range s.dataListeners[deviceID] {
		dataListeners = append(dataListeners, l)
	}
	s.mu.Unlock()

	for _, l := range dataListeners {
		s.safeNotifyData(l, deviceID, telemetry)
	}
	for _, alarm := range alarms {
		s.notifyAlarm(alarm)
	}
	s.updateDeviceState(deviceID, state, now)
	return nil
}

// updateDeviceState 更新设备状态，仅在跳变时通知
func (s *Service) updateDeviceState(deviceID string, state models.DeviceState, at time.Time) {
	s.mu.Lock()
	prev, known := s.states[deviceID]
	s.states[deviceID] = state
	listeners := make([]StateListener, 0, len(s.stateListeners))
	for _, l := range s.stateListeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	if known && prev == state {
		return
	}

	payload := models.StatePayload{
		DeviceID:  deviceID,
		State:     state,
		StateDesc: state.String(),
		ChangedAt: at,
	}
	s.log.Info("Device state changed", "device_id", deviceID, "state", state.String())
	for _, l := range listeners {
		s.safeNotifyState(l, payload)
	}
}

func (s *Service) notifyAlarm(alarm models.AlarmPayload) {
	s.mu.Lock()
	listeners := make([]AlarmListener, 0, len(s.alarmListeners))
	for _, l := range s.alarmListeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		s.safeNotifyAlarm(l, alarm)
	}
}

func (s *Service) safeNotifyState(l StateListener, payload models.StatePayload) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("State listener panicked", fmt.Errorf("%v", r), "device_id", payload.DeviceID)
		}
	}()
	l(payload)
}

func (s *Service) safeNotifyData(l DataListener, deviceID string, telemetry models.Telemetry) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Data listener panicked", fmt.Errorf("%v", r), "device_id", deviceID)
		}
	}()
	l(telemetry)
}

func (s *Service) safeNotifyAlarm(l AlarmListener, alarm models.AlarmPayload) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Alarm listener panicked", fmt.Errorf("%v", r), "device_id", alarm.DeviceID)
		}
	}()
	l(alarm)
}

// GetDeviceState 查询设备当前状态
func (s *Service) GetDeviceState(deviceID string) (models.DeviceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[deviceID]
	return state, ok
}

// GetTelemetry 查询设备最近一次遥测
func (s *Service) GetTelemetry(deviceID string) (models.Telemetry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	telemetry, ok := s.telemetry[deviceID]
	return telemetry, ok
}

// States 全部设备状态快照
func (s *Service) States() map[string]models.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.DeviceState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}
