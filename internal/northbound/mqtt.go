package northbound

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	apperrors "github.com/qverse/iotbridge/internal/errors"
	"github.com/qverse/iotbridge/internal/logger"
	"github.com/qverse/iotbridge/internal/models"
)

// MQTTConfig MQTT上报配置
type MQTTConfig struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	TopicPrefix       string
	QOS               int
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
}

// MQTTAdapter MQTT北向适配器
// 状态发布到 {prefix}/state/{deviceID}，报警发布到 {prefix}/alarm/{deviceID}。
type MQTTAdapter struct {
	cfg MQTTConfig
	log *logger.Logger

	mu     sync.RWMutex
	client mqtt.Client
}

// NewMQTTAdapter 创建MQTT适配器
func NewMQTTAdapter(cfg MQTTConfig) *MQTTAdapter {
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("iotbridge-mqtt-%d", time.Now().UnixNano())
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "iotbridge"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &MQTTAdapter{
		cfg: cfg,
		log: logger.WithModule("northbound.mqtt"),
	}
}

// Name 适配器名称
func (a *MQTTAdapter) Name() string { return "mqtt" }

// Initialize 连接MQTT服务端
func (a *MQTTAdapter) Initialize() error {
	broker := normalizeBroker(a.cfg.Broker)
	if broker == "" {
		return apperrors.NewError(apperrors.ErrCodeBadRequest, "mqtt broker is required")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(a.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(a.cfg.ReconnectInterval).
		SetConnectTimeout(a.cfg.ConnectTimeout)

	if a.cfg.Username != "" {
		opts.SetUsername(a.cfg.Username)
	}
	if a.cfg.Password != "" {
		opts.SetPassword(a.cfg.Password)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		if err != nil {
			a.log.Warn("Connection lost", "broker", broker, "error", err.Error())
		}
	}
	opts.OnConnect = func(_ mqtt.Client) {
		a.log.Info("Connected", "broker", broker)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(a.cfg.ConnectTimeout) {
		return apperrors.NewError(apperrors.ErrCodeTimeout, "mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternalError, "mqtt connect")
	}

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	return nil
}

// SendState 上报设备状态变更
func (a *MQTTAdapter) SendState(payload models.StatePayload) error {
	topic := fmt.Sprintf("%s/state/%s", a.cfg.TopicPrefix, payload.DeviceID)
	return a.publish(topic, payload)
}

// SendAlarm 上报阈值越限报警
func (a *MQTTAdapter) SendAlarm(payload models.AlarmPayload) error {
	topic := fmt.Sprintf("%s/alarm/%s", a.cfg.TopicPrefix, payload.DeviceID)
	return a.publish(topic, payload)
}

func (a *MQTTAdapter) publish(topic string, payload interface{}) error {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return apperrors.NewError(apperrors.ErrCodeInternalError, "mqtt client not connected")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternalError, "marshal payload")
	}

	token := client.Publish(topic, clampQOS(a.cfg.QOS), false, body)
	if !token.WaitTimeout(a.cfg.ConnectTimeout) {
		return apperrors.NewError(apperrors.ErrCodeTimeout, "mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternalError, "mqtt publish")
	}
	return nil
}

// Close 断开连接
func (a *MQTTAdapter) Close() error {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
	return nil
}

func normalizeBroker(broker string) string {
	broker = strings.TrimSpace(broker)
	if broker == "" {
		return ""
	}
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func clampQOS(qos int) byte {
	if qos < 0 {
		return 0
	}
	if qos > 2 {
		return 2
	}
	return byte(qos)
}
