package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ballbot_config.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
# endpoints
SERIAL_PORT=/dev/ttyACM0
MQTT_BROKER=tcp://localhost:1883
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.SerialPort != "/dev/ttyACM0" {
		t.Fatalf("serial port: %q", cfg.SerialPort)
	}
	if cfg.ControlFreqHz != 200 {
		t.Fatalf("default control frequency: %d", cfg.ControlFreqHz)
	}
	if cfg.Period() != 5*time.Millisecond {
		t.Fatalf("period: %v", cfg.Period())
	}
	if cfg.ThetaKP != 11.0 || cfg.ThetaKD != 0.1 {
		t.Fatalf("default gains: kp=%v kd=%v", cfg.ThetaKP, cfg.ThetaKD)
	}
	if cfg.SafetyHoldPolicy != "hold" || cfg.SafetyGateRoll {
		t.Fatalf("default safety policy: %q gateRoll=%v", cfg.SafetyHoldPolicy, cfg.SafetyGateRoll)
	}
	if cfg.LEDCount != 72 {
		t.Fatalf("default LED count: %d", cfg.LEDCount)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
CONTROL_FREQ_HZ=100
FADE_TIME_MS=500
MAX_TILT_DEG=3
SAFETY_HOLD_POLICY=zero
SAFETY_GATE_ROLL=true
LED_ENABLED=true
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Period() != 10*time.Millisecond {
		t.Fatalf("period: %v", cfg.Period())
	}
	if cfg.FadeTime() != 500*time.Millisecond {
		t.Fatalf("fade: %v", cfg.FadeTime())
	}
	if cfg.MaxTiltDeg != 3 {
		t.Fatalf("max tilt: %v", cfg.MaxTiltDeg)
	}
	if cfg.SafetyHoldPolicy != "zero" || !cfg.SafetyGateRoll || !cfg.LEDEnabled {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing serial port", "MQTT_BROKER=tcp://localhost:1883\n"},
		{"missing broker", "SERIAL_PORT=/dev/ttyACM0\n"},
		{"unknown key", minimalConfig + "BOGUS_KEY=1\n"},
		{"bad float", minimalConfig + "MAX_TILT_DEG=five\n"},
		{"bad policy", minimalConfig + "SAFETY_HOLD_POLICY=maybe\n"},
		{"bad duty", minimalConfig + "MAX_DUTY=1.5\n"},
		{"malformed line", minimalConfig + "JUST_A_KEY\n"},
	}
	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.content)); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestAngleHelpers(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d := cfg.MaxTiltRad() - 0.0872664626; d < -1e-9 || d > 1e-9 {
		t.Fatalf("max tilt rad: %v", cfg.MaxTiltRad())
	}
	if d := cfg.AlphaRad() - 0.7853981634; d < -1e-9 || d > 1e-9 {
		t.Fatalf("alpha rad: %v", cfg.AlphaRad())
	}
}
