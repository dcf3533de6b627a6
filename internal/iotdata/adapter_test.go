package iotdata

import (
	"testing"

	"github.com/qverse/iotbridge/internal/models"
)

func TestExtractIotType(t *testing.T) {
	a := NewAdapter(AdapterOptions{})

	tests := []struct {
		keyword string
		want    models.IotType
	}{
		{"iot_CV-05126", models.IotTypeIot},
		{"IOT_CV-05126", models.IotTypeIot},
		{"camera_C-01_1", models.IotTypeCamera},
		{"Camera_C-01", models.IotTypeCamera},
		{"door_D-01", models.IotTypeOthers},
		{"plain-label", models.IotTypeOthers},
		{"", models.IotTypeOthers},
		{"   ", models.IotTypeOthers},
	}

	for _, tt := range tests {
		if got := a.ExtractIotType(tt.keyword); got != tt.want {
			t.Errorf("ExtractIotType(%q) = %q, want %q", tt.keyword, got, tt.want)
		}
	}
}

func TestExtractDeviceID(t *testing.T) {
	a := NewAdapter(AdapterOptions{})

	tests := []struct {
		keyword string
		want    string
	}{
		{"iot_CV-05126", "CV-05126"},
		{"camera_C-01_1", "C-01"},
		{"iot", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := a.ExtractDeviceID(tt.keyword); got != tt.want {
			t.Errorf("ExtractDeviceID(%q) = %q, want %q", tt.keyword, got, tt.want)
		}
	}
}

func TestExtractCameraMode(t *testing.T) {
	a := NewAdapter(AdapterOptions{})

	tests := []struct {
		keyword string
		want    models.CameraMode
	}{
		{"camera_C-01_1", models.CameraModeLive},
		{"camera_C-01_0", models.CameraModeVOD},
		{"camera_C-01", models.CameraModeVOD},
		{"camera_C-01_x", models.CameraModeVOD},
		{"camera_C-01_9", models.CameraModeVOD},
	}

	for _, tt := range tests {
		if got := a.ExtractCameraMode(tt.keyword); got != tt.want {
			t.Errorf("ExtractCameraMode(%q) = %d, want %d", tt.keyword, got, tt.want)
		}
	}
}

func TestParseIotDataStateFromKeyword(t *testing.T) {
	const keyword = "iot_CV-05126_1"

	// 关闭时第三段被忽略，状态恒为正常
	fixed := NewAdapter(AdapterOptions{StateFromKeyword: false})
	if got := fixed.ParseIotData(keyword).State; got != models.StateNormal {
		t.Errorf("state with flag off = %d, want normal", got)
	}

	// 开启时第三段解释为设备状态
	parsed := NewAdapter(AdapterOptions{StateFromKeyword: true})
	if got := parsed.ParseIotData(keyword).State; got != models.StateError {
		t.Errorf("state with flag on = %d, want error", got)
	}
	if got := parsed.ParseIotData("iot_CV-05126_0").State; got != models.StateNormal {
		t.Errorf("state segment 0 = %d, want normal", got)
	}
	if got := parsed.ParseIotData("iot_CV-05126").State; got != models.StateNormal {
		t.Errorf("missing segment = %d, want normal", got)
	}
	if got := parsed.ParseIotData("iot_CV-05126_bad").State; got != models.StateNormal {
		t.Errorf("bad segment = %d, want normal", got)
	}
}

func TestParseIotDataClassification(t *testing.T) {
	a := NewAdapter(AdapterOptions{})

	iot := a.ParseIotData("iot_CV-05126")
	if iot.Type != models.IotTypeIot || !iot.IsIotTag || iot.DeviceID != "CV-05126" {
		t.Errorf("iot data = %+v", iot)
	}

	camera := a.ParseIotData("camera_C-01_1")
	if camera.Type != models.IotTypeCamera || camera.Mode != models.CameraModeLive {
		t.Errorf("camera data = %+v", camera)
	}

	other := a.ParseIotData("decoration")
	if other.Type != models.IotTypeOthers || other.IsIotTag {
		t.Errorf("other data = %+v", other)
	}
}

func TestCustomSeparator(t *testing.T) {
	a := NewAdapter(AdapterOptions{Separator: "-"})

	data := a.ParseIotData("iot-CV05126")
	if data.Type != models.IotTypeIot || data.DeviceID != "CV05126" {
		t.Errorf("data = %+v", data)
	}
}

func TestValidateIotData(t *testing.T) {
	a := NewAdapter(AdapterOptions{})

	if !a.ValidateIotData(a.ParseIotData("iot_CV-05126")) {
		t.Error("complete iot keyword should validate")
	}
	if a.ValidateIotData(a.ParseIotData("iot")) {
		t.Error("missing device id should not validate")
	}
	if a.ValidateIotData(a.ParseIotData("decoration_X-01")) {
		t.Error("others classification should not validate")
	}
}

func TestFormatPut2dConvertsMillimeters(t *testing.T) {
	a := NewAdapter(AdapterOptions{})

	device := a.FormatPut2d(models.RawPut2d{
		ID:     "p1",
		Title:  "iot_CV-05126_1",
		Width:  1500,
		Height: 800,
	})

	if device.Width != 1.5 {
		t.Errorf("Width = %v, want 1.5", device.Width)
	}
	if device.Height != 0.8 {
		t.Errorf("Height = %v, want 0.8", device.Height)
	}
	if device.Type != models.IotTypeIot || device.DeviceID != "CV-05126" {
		t.Errorf("device = %+v", device)
	}
	if device.Mode != models.DisplayModeCSS3D {
		t.Errorf("Mode = %d, want CSS3D", device.Mode)
	}
}

func TestProcessTagListTotality(t *testing.T) {
	a := NewAdapter(AdapterOptions{})

	tags := []models.RawTag{
		{ID: "t1", Keyword: "iot_CV-05126"},
		{ID: "t2", Keyword: ""},
		{ID: "t3", Keyword: "camera_C-01_1"},
		{ID: "t4", Keyword: "garbage"},
	}

	result := a.ProcessTagList(tags)
	if len(result) != len(tags) {
		t.Fatalf("result = %d entries, want %d", len(result), len(tags))
	}
	if result[1].IsIotTag {
		t.Error("empty keyword should classify as others")
	}
	if !result[2].IsIotTag {
		t.Error("camera keyword should classify as iot tag")
	}
}
