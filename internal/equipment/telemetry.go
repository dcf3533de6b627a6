package equipment

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	apperrors "github.com/qverse/iotbridge/internal/errors"
	"github.com/qverse/iotbridge/internal/logger"
	"github.com/qverse/iotbridge/internal/models"
)

// Provider 遥测数据源
type Provider interface {
	// Fetch 拉取指定设备的遥测数据
	Fetch(ctx context.Context, deviceID string) (models.Telemetry, error)
	// Name 数据源名称
	Name() string
}

// HTTPProvider 基于HTTP服务的遥测数据源
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider 创建HTTP遥测数据源
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string { return "http" }

// Fetch 请求 GET {base}/devices/{id}/telemetry
func (p *HTTPProvider) Fetch(ctx context.Context, deviceID string) (models.Telemetry, error) {
	endpoint := fmt.Sprintf("%s/devices/%s/telemetry", p.baseURL, url.PathEscape(deviceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Telemetry{}, apperrors.WrapError(err, apperrors.ErrCodeInternalError, "build telemetry request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return models.Telemetry{}, apperrors.WrapError(err, apperrors.ErrCodeInternalError, "telemetry request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Telemetry{}, apperrors.NewError(apperrors.ErrCodeInternalError,
			fmt.Sprintf("telemetry endpoint returned %d", resp.StatusCode))
	}

	var telemetry models.Telemetry
	if err := json.NewDecoder(resp.Body).Decode(&telemetry); err != nil {
		return models.Telemetry{}, apperrors.WrapError(err, apperrors.ErrCodeInternalError, "decode telemetry")
	}
	return telemetry, nil
}

// SyntheticProvider 模拟遥测数据源
// 取值范围略宽于额定阈值，可以自然触发越限报警。
type SyntheticProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticProvider 创建模拟数据源
func NewSyntheticProvider(seed int64) *SyntheticProvider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SyntheticProvider{rng: rand.New(rand.NewSource(seed))}
}

func (p *SyntheticProvider) Name() string { return "synthetic" }

// Fetch 生成一份模拟遥测
func (p *SyntheticProvider) Fetch(_ context.Context, _ string) (models.Telemetry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return models.Telemetry{
		RatedVoltage:    p.between(220, 390),
		RatedCurrent:    p.between(5, 33),
		RatedPower:      p.between(2, 6.1),
		RatedFrequency:  p.between(15, 65),
		RatedSpeed:      p.between(1000, 2020),
		MechanicalRatio: p.between(1, 3),
	}, nil
}

func (p *SyntheticProvider) between(min, max float64) float64 {
	return min + p.rng.Float64()*(max-min)
}

// FallbackProvider 组合数据源：主源失败时回退到备源
type FallbackProvider struct {
	primary  Provider
	fallback Provider
	log      *logger.Logger
}

// NewFallbackProvider 创建组合数据源
func NewFallbackProvider(primary, fallback Provider) *FallbackProvider {
	return &FallbackProvider{
		primary:  primary,
		fallback: fallback,
		log:      logger.WithModule("equipment.telemetry"),
	}
}

func (p *FallbackProvider) Name() string {
	return p.primary.Name() + "+" + p.fallback.Name()
}

// Fetch 先取主源，失败时记录并改取备源
func (p *FallbackProvider) Fetch(ctx context.Context, deviceID string) (models.Telemetry, error) {
	telemetry, err := p.primary.Fetch(ctx, deviceID)
	if err == nil {
		return telemetry, nil
	}
	p.log.Warn("Primary telemetry source failed, using fallback",
		"device_id", deviceID, "source", p.primary.Name(), "error", err.Error())
	return p.fallback.Fetch(ctx, deviceID)
}
