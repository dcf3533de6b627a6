package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	// 服务器配置
	ListenAddr string `yaml:"listen_addr"`
	// TLS/证书配置
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
	TLSAuto     bool   `yaml:"tls_auto"`      // 是否启用自动申请（Let's Encrypt）
	TLSDomain   string `yaml:"tls_domain"`    // 自动证书域名
	TLSCacheDir string `yaml:"tls_cache_dir"` // 自动证书缓存目录

	// HTTP超时配置
	HTTPReadTimeout  time.Duration `yaml:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `yaml:"http_write_timeout"`
	HTTPIdleTimeout  time.Duration `yaml:"http_idle_timeout"`

	// 数据库配置
	DBPath string `yaml:"db_path"`

	// 会话配置
	SessionSecret string `yaml:"session_secret"`
	// 管理账号，密码为bcrypt散列
	AdminUsername     string `yaml:"admin_username"`
	AdminPasswordHash string `yaml:"admin_password_hash"`

	// CORS配置
	AllowedOrigins string `yaml:"allowed_origins"`

	// 日志配置
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// 桥接通道配置
	Bridge BridgeConfig `yaml:"bridge"`

	// 标识解析配置
	IotData IotDataConfig `yaml:"iotdata"`

	// 设备轮询配置
	Equipment EquipmentConfig `yaml:"equipment"`

	// 北向配置
	Northbound NorthboundConfig `yaml:"northbound"`
}

// BridgeConfig 跨端桥接通道配置
type BridgeConfig struct {
	// HostOrigin 本端来源，握手应答时告知对端
	HostOrigin string `yaml:"host_origin"`
	// PeerOrigin 允许建立连接的对端来源，精确匹配
	PeerOrigin string `yaml:"peer_origin"`
	// RequestTimeout 请求应答的默认超时
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// SendQueueLimit 断连期间待发队列的容量上限
	SendQueueLimit int `yaml:"send_queue_limit"`
}

// IotDataConfig 标识解析与缓存配置
type IotDataConfig struct {
	// KeywordSeparator 标识关键字的分隔符
	KeywordSeparator string `yaml:"keyword_separator"`
	// StateFromKeyword 是否从关键字第三段解析设备状态
	StateFromKeyword bool `yaml:"state_from_keyword"`
	// 缓存配置
	CacheEnabled bool          `yaml:"cache_enabled"`
	CacheMaxSize int           `yaml:"cache_max_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// EquipmentConfig 设备遥测轮询配置
type EquipmentConfig struct {
	// PollInterval 全局轮询周期
	PollInterval time.Duration `yaml:"poll_interval"`
	// TelemetryBaseURL 遥测HTTP服务地址，为空时仅使用模拟数据
	TelemetryBaseURL string `yaml:"telemetry_base_url"`
	// TelemetryTimeout 单次遥测请求超时
	TelemetryTimeout time.Duration `yaml:"telemetry_timeout"`
	// DriverPath 遥测WASM驱动路径，为空时不加载
	DriverPath string `yaml:"driver_path"`
	// DriverCallTimeout 驱动调用超时
	DriverCallTimeout time.Duration `yaml:"driver_call_timeout"`
}

// NorthboundConfig 北向上报配置
type NorthboundConfig struct {
	MQTTEnabled           bool          `yaml:"mqtt_enabled"`
	MQTTBroker            string        `yaml:"mqtt_broker"`
	MQTTClientID          string        `yaml:"mqtt_client_id"`
	MQTTUsername          string        `yaml:"mqtt_username"`
	MQTTPassword          string        `yaml:"mqtt_password"`
	MQTTTopicPrefix       string        `yaml:"mqtt_topic_prefix"`
	MQTTReconnectInterval time.Duration `yaml:"mqtt_reconnect_interval"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:        ":8080",
		TLSCertFile:       "",
		TLSKeyFile:        "",
		TLSAuto:           false,
		TLSDomain:         "",
		TLSCacheDir:       "cert-cache",
		HTTPReadTimeout:   30 * time.Second,
		HTTPWriteTimeout:  30 * time.Second,
		HTTPIdleTimeout:   60 * time.Second,
		DBPath:            "iotbridge.db",
		SessionSecret:     "",
		AdminUsername:     "admin",
		AdminPasswordHash: "",
		AllowedOrigins:    "",
		LogLevel:          "info",
		LogJSON:           false,
		Bridge: BridgeConfig{
			HostOrigin:     "",
			PeerOrigin:     "",
			RequestTimeout: 10 * time.Second,
			SendQueueLimit: 256,
		},
		IotData: IotDataConfig{
			KeywordSeparator: "_",
			StateFromKeyword: false,
			CacheEnabled:     true,
			CacheMaxSize:     100,
			CacheTTL:         5 * time.Minute,
		},
		Equipment: EquipmentConfig{
			PollInterval:      2 * time.Second,
			TelemetryBaseURL:  "",
			TelemetryTimeout:  5 * time.Second,
			DriverPath:        "",
			DriverCallTimeout: 10 * time.Second,
		},
		Northbound: NorthboundConfig{
			MQTTEnabled:           false,
			MQTTBroker:            "tcp://127.0.0.1:1883",
			MQTTClientID:          "iotbridge",
			MQTTUsername:          "",
			MQTTPassword:          "",
			MQTTTopicPrefix:       "iotbridge",
			MQTTReconnectInterval: 5 * time.Second,
		},
	}
}

// Load 从配置文件和环境变量加载配置
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// 1. 先从 YAML 文件加载配置
	if err := loadFromFile(cfg); err != nil {
		// 配置文件不存在或解析失败，使用默认配置（不报错）
		_ = err
	}

	// 2. 环境变量覆盖配置
	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func loadFromFile(cfg *Config) error {
	configPaths := []string{
		"config/config.yaml",
		"../config/config.yaml",
		"./config.yaml",
	}

	var configFile string
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			configFile = path
			break
		}
	}

	if configFile == "" {
		return fmt.Errorf("config file not found")
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate 检查配置取值是否可用
func (c *Config) Validate() error {
	if c.Bridge.RequestTimeout <= 0 {
		return fmt.Errorf("bridge.request_timeout must be positive, got %v", c.Bridge.RequestTimeout)
	}
	if c.Bridge.SendQueueLimit <= 0 {
		return fmt.Errorf("bridge.send_queue_limit must be positive, got %d", c.Bridge.SendQueueLimit)
	}
	if c.IotData.KeywordSeparator == "" {
		return fmt.Errorf("iotdata.keyword_separator must not be empty")
	}
	if c.IotData.CacheMaxSize <= 0 {
		return fmt.Errorf("iotdata.cache_max_size must be positive, got %d", c.IotData.CacheMaxSize)
	}
	if c.IotData.CacheTTL <= 0 {
		return fmt.Errorf("iotdata.cache_ttl must be positive, got %v", c.IotData.CacheTTL)
	}
	if c.Equipment.PollInterval <= 0 {
		return fmt.Errorf("equipment.poll_interval must be positive, got %v", c.Equipment.PollInterval)
	}
	return nil
}

// loadFromEnv 从环境变量加载配置（会覆盖文件配置）
func loadFromEnv(cfg *Config) {
	if cfg == nil {
		return
	}

	setStringFromEnv(&cfg.ListenAddr, "LISTEN_ADDR")

	setDurationFromEnv(&cfg.HTTPReadTimeout, "HTTP_READ_TIMEOUT")
	setDurationFromEnv(&cfg.HTTPWriteTimeout, "HTTP_WRITE_TIMEOUT")
	setDurationFromEnv(&cfg.HTTPIdleTimeout, "HTTP_IDLE_TIMEOUT")

	setStringFromEnv(&cfg.DBPath, "DB_PATH")

	setStringFromEnv(&cfg.TLSCertFile, "TLS_CERT_FILE")
	setStringFromEnv(&cfg.TLSKeyFile, "TLS_KEY_FILE")
	setBoolFromEnvAllowOne(&cfg.TLSAuto, "TLS_AUTO")
	setStringFromEnv(&cfg.TLSDomain, "TLS_DOMAIN")
	setStringFromEnv(&cfg.TLSCacheDir, "TLS_CACHE_DIR")

	setStringFromEnv(&cfg.SessionSecret, "SESSION_SECRET")
	setStringFromEnv(&cfg.AdminUsername, "ADMIN_USERNAME")
	setStringFromEnv(&cfg.AdminPasswordHash, "ADMIN_PASSWORD_HASH")
	setStringFromEnv(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")

	setStringFromEnv(&cfg.LogLevel, "LOG_LEVEL")
	setBoolFromEnv(&cfg.LogJSON, "LOG_JSON")

	setStringFromEnv(&cfg.Bridge.HostOrigin, "BRIDGE_HOST_ORIGIN")
	setStringFromEnv(&cfg.Bridge.PeerOrigin, "BRIDGE_PEER_ORIGIN")
	setDurationFromEnv(&cfg.Bridge.RequestTimeout, "BRIDGE_REQUEST_TIMEOUT")
	setIntFromEnv(&cfg.Bridge.SendQueueLimit, "BRIDGE_SEND_QUEUE_LIMIT")

	setStringFromEnv(&cfg.IotData.KeywordSeparator, "IOTDATA_KEYWORD_SEPARATOR")
	setBoolFromEnv(&cfg.IotData.StateFromKeyword, "IOTDATA_STATE_FROM_KEYWORD")
	setBoolFromEnv(&cfg.IotData.CacheEnabled, "IOTDATA_CACHE_ENABLED")
	setIntFromEnv(&cfg.IotData.CacheMaxSize, "IOTDATA_CACHE_MAX_SIZE")
	setDurationFromEnv(&cfg.IotData.CacheTTL, "IOTDATA_CACHE_TTL")

	setDurationFromEnv(&cfg.Equipment.PollInterval, "EQUIPMENT_POLL_INTERVAL")
	setStringFromEnv(&cfg.Equipment.TelemetryBaseURL, "EQUIPMENT_TELEMETRY_BASE_URL")
	setDurationFromEnv(&cfg.Equipment.TelemetryTimeout, "EQUIPMENT_TELEMETRY_TIMEOUT")
	setStringFromEnv(&cfg.Equipment.DriverPath, "EQUIPMENT_DRIVER_PATH")
	setDurationFromEnv(&cfg.Equipment.DriverCallTimeout, "EQUIPMENT_DRIVER_CALL_TIMEOUT")

	setBoolFromEnv(&cfg.Northbound.MQTTEnabled, "NORTHBOUND_MQTT_ENABLED")
	setStringFromEnv(&cfg.Northbound.MQTTBroker, "NORTHBOUND_MQTT_BROKER")
	setStringFromEnv(&cfg.Northbound.MQTTClientID, "NORTHBOUND_MQTT_CLIENT_ID")
	setStringFromEnv(&cfg.Northbound.MQTTUsername, "NORTHBOUND_MQTT_USERNAME")
	setStringFromEnv(&cfg.Northbound.MQTTPassword, "NORTHBOUND_MQTT_PASSWORD")
	setStringFromEnv(&cfg.Northbound.MQTTTopicPrefix, "NORTHBOUND_MQTT_TOPIC_PREFIX")
	setDurationFromEnv(&cfg.Northbound.MQTTReconnectInterval, "NORTHBOUND_MQTT_RECONNECT_INTERVAL")
}

func setStringFromEnv(dst *string, key string) {
	if dst == nil {
		return
	}
	if value, ok := envValue(key); ok {
		*dst = value
	}
}

func setBoolFromEnv(dst *bool, key string) {
	if dst == nil {
		return
	}
	if value, ok := envValue(key); ok {
		*dst = parseTrueBool(value)
	}
}

func setBoolFromEnvAllowOne(dst *bool, key string) {
	if dst == nil {
		return
	}
	if value, ok := envValue(key); ok {
		*dst = parseTrueBoolOrOne(value)
	}
}

func setIntFromEnv(dst *int, key string) {
	if dst == nil {
		return
	}
	value, ok := envValue(key)
	if !ok {
		return
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		*dst = parsed
	}
}

func setDurationFromEnv(dst *time.Duration, key string) {
	if dst == nil {
		return
	}
	value, ok := envValue(key)
	if !ok {
		return
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		*dst = parsed
	}
}

func envValue(key string) (string, bool) {
	value := os.Getenv(key)
	if value == "" {
		return "", false
	}
	return value, true
}

func parseTrueBool(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

func parseTrueBoolOrOne(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.EqualFold(trimmed, "true") || trimmed == "1"
}

// GetAllowedOrigins 获取允许的跨域来源列表
func (c *Config) GetAllowedOrigins() []string {
	if c.AllowedOrigins == "" {
		return []string{"http://localhost:8080", "http://127.0.0.1:8080"}
	}
	return strings.Split(c.AllowedOrigins, ",")
}

// String 返回配置的字符串表示
func (c *Config) String() string {
	return fmt.Sprintf("Config{ListenAddr=%s, DBPath=%s, LogLevel=%s, PollInterval=%v, CacheMaxSize=%d}",
		c.ListenAddr, c.DBPath, c.LogLevel, c.Equipment.PollInterval, c.IotData.CacheMaxSize)
}
