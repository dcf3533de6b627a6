package equipment

import (
	"time"

	"github.com/qverse/iotbridge/internal/models"
)

// Threshold 单项额定指标的阈值区间
type Threshold struct {
	Field string  `json:"field"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Unit  string  `json:"unit"`
}

// RatedThresholds 六项额定指标的阈值表
var RatedThresholds = []Threshold{
	{Field: "ratedVoltage", Min: 220, Max: 380, Unit: "V"},
	{Field: "ratedCurrent", Min: 5, Max: 30, Unit: "A"},
	{Field: "ratedPower", Min: 2, Max: 6, Unit: "kW"},
	{Field: "ratedFrequency", Min: 15, Max: 60, Unit: "Hz"},
	{Field: "ratedSpeed", Min: 1000, Max: 2000, Unit: "r/min"},
	{Field: "mechanicalRatio", Min: 1, Max: 3, Unit: ":1"},
}

// CheckThresholds 逐项检查遥测值是否越限
// 返回全部越限项；无越限时返回空切片。
func CheckThresholds(deviceID string, telemetry models.Telemetry, at time.Time) []models.AlarmPayload {
	alarms := make([]models.AlarmPayload, 0)
	for _, th := range RatedThresholds {
		value, ok := telemetry.Field(th.Field)
		if !ok {
			continue
		}
		if value < th.Min || value > th.Max {
			alarms = append(alarms, models.AlarmPayload{
				DeviceID:    deviceID,
				FieldName:   th.Field,
				ActualValue: value,
				Min:         th.Min,
				Max:         th.Max,
				Unit:        th.Unit,
				TriggeredAt: at,
			})
		}
	}
	return alarms
}
