package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/qverse/iotbridge/internal/auth"
	"github.com/qverse/iotbridge/internal/bridge"
	"github.com/qverse/iotbridge/internal/config"
	"github.com/qverse/iotbridge/internal/equipment"
	"github.com/qverse/iotbridge/internal/graceful"
	"github.com/qverse/iotbridge/internal/handlers"
	"github.com/qverse/iotbridge/internal/iotdata"
	"github.com/qverse/iotbridge/internal/logger"
	"github.com/qverse/iotbridge/internal/models"
	"github.com/qverse/iotbridge/internal/northbound"
	"github.com/qverse/iotbridge/internal/scene"
)

// Run boots the application and blocks until shutdown completes.
func Run(cfg *config.Config) error {
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	logger.SetJSONOutput(cfg.LogJSON)

	secretKey := loadOrGenerateSecretKey(cfg.SessionSecret)

	store, err := scene.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open scene store: %w", err)
	}

	manager := iotdata.NewManager(
		iotdata.NewAdapter(iotdata.AdapterOptions{
			Separator:        cfg.IotData.KeywordSeparator,
			StateFromKeyword: cfg.IotData.StateFromKeyword,
		}),
		iotdata.NewCache(iotdata.CacheConfig{
			Enabled: cfg.IotData.CacheEnabled,
			MaxSize: cfg.IotData.CacheMaxSize,
			TTL:     cfg.IotData.CacheTTL,
		}),
	)

	provider, closeProvider, err := buildTelemetryProvider(cfg)
	if err != nil {
		store.Close()
		return err
	}
	logger.Info("Telemetry provider ready", "provider", provider.Name())

	eqService := equipment.NewService(provider, func() []string {
		idMap := manager.GetIotIdMap()
		devices := make([]string, 0, len(idMap))
		for deviceID := range idMap {
			devices = append(devices, deviceID)
		}
		return devices
	}, cfg.Equipment.PollInterval)

	northMgr := northbound.NewManager()
	if cfg.Northbound.MQTTEnabled {
		northMgr.Register(northbound.NewMQTTAdapter(northbound.MQTTConfig{
			Broker:            cfg.Northbound.MQTTBroker,
			ClientID:          cfg.Northbound.MQTTClientID,
			Username:          cfg.Northbound.MQTTUsername,
			Password:          cfg.Northbound.MQTTPassword,
			TopicPrefix:       cfg.Northbound.MQTTTopicPrefix,
			ReconnectInterval: cfg.Northbound.MQTTReconnectInterval,
		}))
	}
	northMgr.InitializeAll()

	// 状态跳变与报警经北向适配器上报
	eqService.AddStateListener(func(p models.StatePayload) {
		northMgr.BroadcastState(p)
	})
	eqService.AddAlarmListener(func(p models.AlarmPayload) {
		northMgr.BroadcastAlarm(p)
	})

	channel := bridge.NewChannel(bridge.Config{
		HostOrigin:     cfg.Bridge.HostOrigin,
		PeerOrigin:     cfg.Bridge.PeerOrigin,
		RequestTimeout: cfg.Bridge.RequestTimeout,
		SendQueueLimit: cfg.Bridge.SendQueueLimit,
	})
	bridgeServer := bridge.NewServer(channel, cfg.Bridge.PeerOrigin)

	authManager := auth.NewJWTManager(secretKey, cfg.AdminUsername, cfg.AdminPasswordHash)
	h := handlers.New(store, manager, eqService, channel, authManager)

	router := buildRouter(h, bridgeServer)
	finalHandler := buildHandlerChain(cfg, router)

	eqService.StartGlobalUpdate()

	gracefulMgr := graceful.NewGracefulShutdown(30 * time.Second)
	registerShutdown(gracefulMgr, eqService, northMgr, channel, store, closeProvider)
	gracefulMgr.Start()

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      finalHandler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	gracefulMgr.SetHTTPServer(server)

	// TLS 优先级：1) 自动证书 2) 指定证书 3) HTTP
	switch {
	case cfg.TLSAuto && cfg.TLSDomain != "":
		m := &autocert.Manager{
			Cache:      autocert.DirCache(cfg.TLSCacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLSDomain),
		}
		server.TLSConfig = &tls.Config{
			GetCertificate: m.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}
		go func() {
			_ = http.ListenAndServe(":80", m.HTTPHandler(nil))
		}()
		logger.Info("Starting HTTPS (auto-cert)", "addr", cfg.ListenAddr, "domain", cfg.TLSDomain)
		if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case cfg.TLSCertFile != "" && cfg.TLSKeyFile != "":
		logger.Info("Starting HTTPS", "addr", cfg.ListenAddr, "cert", cfg.TLSCertFile)
		if err := server.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	default:
		logger.Info("Starting HTTP", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	gracefulMgr.Wait()
	return nil
}

// buildTelemetryProvider 按配置组装遥测数据源
// WASM驱动优先，其次遥测HTTP服务，二者均回退到模拟数据；
// 都未配置时仅使用模拟数据。
func buildTelemetryProvider(cfg *config.Config) (equipment.Provider, func(context.Context) error, error) {
	synthetic := equipment.NewSyntheticProvider(time.Now().UnixNano())
	closeProvider := func(context.Context) error { return nil }

	if cfg.Equipment.DriverPath != "" {
		wasm, err := equipment.NewWasmProvider(cfg.Equipment.DriverPath, cfg.Equipment.DriverCallTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("load telemetry driver: %w", err)
		}
		return equipment.NewFallbackProvider(wasm, synthetic), wasm.Close, nil
	}

	if cfg.Equipment.TelemetryBaseURL != "" {
		httpProvider := equipment.NewHTTPProvider(cfg.Equipment.TelemetryBaseURL, cfg.Equipment.TelemetryTimeout)
		return equipment.NewFallbackProvider(httpProvider, synthetic), closeProvider, nil
	}

	return synthetic, closeProvider, nil
}

func registerShutdown(gracefulMgr *graceful.GracefulShutdown, eqService *equipment.Service,
	northMgr *northbound.Manager, channel *bridge.Channel, store *scene.Store,
	closeProvider func(context.Context) error) {

	gracefulMgr.AddShutdownFunc(func(ctx context.Context) error {
		logger.Info("Stopping equipment polling...")
		return eqService.Shutdown(ctx)
	})

	gracefulMgr.AddShutdownFunc(func(ctx context.Context) error {
		logger.Info("Closing bridge channel...")
		return channel.Close()
	})

	gracefulMgr.AddShutdownFunc(func(ctx context.Context) error {
		logger.Info("Stopping northbound manager...")
		return northMgr.Shutdown(ctx)
	})

	gracefulMgr.AddShutdownFunc(func(ctx context.Context) error {
		logger.Info("Closing telemetry driver...")
		return closeProvider(ctx)
	})

	gracefulMgr.AddShutdownFunc(func(ctx context.Context) error {
		logger.Info("Closing scene store...")
		return store.Shutdown(ctx)
	})
}
