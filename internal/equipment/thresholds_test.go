package equipment

import (
	"testing"
	"time"

	"github.com/qverse/iotbridge/internal/models"
)

func inRangeTelemetry() models.Telemetry {
	return models.Telemetry{
		RatedVoltage:    300,
		RatedCurrent:    15,
		RatedPower:      4,
		RatedFrequency:  50,
		RatedSpeed:      1500,
		MechanicalRatio: 2,
	}
}

func TestCheckThresholdsAllInRange(t *testing.T) {
	alarms := CheckThresholds("CV-05126", inRangeTelemetry(), time.Now())
	if len(alarms) != 0 {
		t.Errorf("alarms = %+v, want none", alarms)
	}
}

func TestCheckThresholdsBoundariesInclusive(t *testing.T) {
	low := models.Telemetry{
		RatedVoltage:    220,
		RatedCurrent:    5,
		RatedPower:      2,
		RatedFrequency:  15,
		RatedSpeed:      1000,
		MechanicalRatio: 1,
	}
	if alarms := CheckThresholds("d", low, time.Now()); len(alarms) != 0 {
		t.Errorf("lower bounds should be in range, got %+v", alarms)
	}

	high := models.Telemetry{
		RatedVoltage:    380,
		RatedCurrent:    30,
		RatedPower:      6,
		RatedFrequency:  60,
		RatedSpeed:      2000,
		MechanicalRatio: 3,
	}
	if alarms := CheckThresholds("d", high, time.Now()); len(alarms) != 0 {
		t.Errorf("upper bounds should be in range, got %+v", alarms)
	}
}

func TestCheckThresholdsViolations(t *testing.T) {
	telemetry := inRangeTelemetry()
	telemetry.RatedVoltage = 390 // 越上限
	telemetry.RatedCurrent = 4   // 越下限

	at := time.Now()
	alarms := CheckThresholds("CV-05126", telemetry, at)
	if len(alarms) != 2 {
		t.Fatalf("alarms = %d, want 2", len(alarms))
	}

	byField := make(map[string]models.AlarmPayload)
	for _, a := range alarms {
		byField[a.FieldName] = a
	}

	voltage, ok := byField["ratedVoltage"]
	if !ok {
		t.Fatal("missing voltage alarm")
	}
	if voltage.ActualValue != 390 || voltage.Min != 220 || voltage.Max != 380 || voltage.Unit != "V" {
		t.Errorf("voltage alarm = %+v", voltage)
	}
	if voltage.DeviceID != "CV-05126" || !voltage.TriggeredAt.Equal(at) {
		t.Errorf("voltage alarm metadata = %+v", voltage)
	}

	if _, ok := byField["ratedCurrent"]; !ok {
		t.Error("missing current alarm")
	}
}
