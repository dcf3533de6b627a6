package equipment

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	extism "github.com/extism/go-sdk"

	apperrors "github.com/qverse/iotbridge/internal/errors"
	"github.com/qverse/iotbridge/internal/logger"
	"github.com/qverse/iotbridge/internal/models"
)

// WasmProvider 基于WASM驱动的遥测数据源
// 驱动导出 fetch_telemetry 函数：入参 {"device_id":...}，
// 出参为遥测JSON。调用串行化，WASM实例不可重入。
type WasmProvider struct {
	mu          sync.Mutex
	plugin      *extism.Plugin
	driverName  string
	callTimeout time.Duration
	log         *logger.Logger
}

type wasmFetchInput struct {
	DeviceID string `json:"device_id"`
}

// NewWasmProvider 从文件加载WASM驱动
func NewWasmProvider(path string, callTimeout time.Duration) (*WasmProvider, error) {
	wasmData, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeStorageError, "read driver file")
	}

	log := logger.WithModule("equipment.driver")
	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			&extism.WasmData{
				Name: path,
				Data: wasmData,
			},
		},
	}

	plugin, err := extism.NewPlugin(context.Background(), manifest, extism.PluginConfig{
		EnableWasi: true,
	}, nil)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInternalError, "load driver")
	}

	plugin.SetLogger(func(level extism.LogLevel, message string) {
		switch level {
		case extism.LogLevelError:
			log.Error("Driver log", fmt.Errorf("%s", message), "driver", path)
		case extism.LogLevelWarn:
			log.Warn("Driver log", "driver", path, "message", message)
		default:
			log.Debug("Driver log", "driver", path, "message", message)
		}
	})

	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &WasmProvider{
		plugin:      plugin,
		driverName:  path,
		callTimeout: callTimeout,
		log:         log,
	}, nil
}

func (p *WasmProvider) Name() string { return "wasm" }

// Fetch 调用驱动的 fetch_telemetry 导出函数
func (p *WasmProvider) Fetch(ctx context.Context, deviceID string) (models.Telemetry, error) {
	input, err := json.Marshal(wasmFetchInput{DeviceID: deviceID})
	if err != nil {
		return models.Telemetry{}, apperrors.WrapError(err, apperrors.ErrCodeInternalError, "marshal driver input")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	p.mu.Lock()
	rc, output, err := p.plugin.CallWithContext(callCtx, "fetch_telemetry", input)
	p.mu.Unlock()
	if err != nil {
		return models.Telemetry{}, apperrors.WrapError(err, apperrors.ErrCodeInternalError, "driver call failed")
	}
	if rc != 0 {
		return models.Telemetry{}, apperrors.NewError(apperrors.ErrCodeInternalError,
			fmt.Sprintf("driver returned code %d", rc))
	}

	var telemetry models.Telemetry
	if err := json.Unmarshal(output, &telemetry); err != nil {
		return models.Telemetry{}, apperrors.WrapError(err, apperrors.ErrCodeInternalError, "decode driver output")
	}
	return telemetry, nil
}

// Close 释放驱动实例
func (p *WasmProvider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.plugin == nil {
		return nil
	}
	err := p.plugin.Close(ctx)
	p.plugin = nil
	return err
}
