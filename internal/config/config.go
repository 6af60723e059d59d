package config

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values. Physical and
// control constants default to the robot's tuned values; endpoints
// (serial port, broker) must be present in the file.
type Config struct {
	// Motor-controller link
	SerialPort string
	SerialBaud uint

	// MQTT
	MQTTBroker          string
	MQTTClientIDBalance string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string

	// Topics
	TopicPose   string
	TopicTorque string
	TopicDuty   string
	TopicTiming string

	// Control loop
	ControlFreqHz int
	FadeTimeMS    int

	// Physical constants
	WheelRadiusM  float64
	BallRadiusM   float64
	WheelAlphaDeg float64 // wheel mounting half-angle

	// Stability controller gains (shared by the roll and pitch loops)
	ThetaKP float64
	ThetaKI float64
	ThetaKD float64

	// Limits
	MaxTiltDeg      float64
	MaxBallVelocity float64 // rad/s
	MaxDuty         float64
	MaxYawTorque    float64 // Nm
	RotationTimeMS  int

	// Safety envelope policy: what happens to the gated axis while the
	// envelope is violated ("hold" keeps the previous torque, "zero"
	// drops it), and whether roll is gated at all.
	SafetyHoldPolicy string
	SafetyGateRoll   bool

	// Joystick
	JoystickDevice string

	// LED ring
	LEDEnabled   bool
	LEDSPIDevice string
	LEDCount     int
	LEDIntensity int // 0-255 global brightness

	// Telemetry
	TelemetryDecimation int // publish every N-th tick

	// Web server
	WebServerPort int
}

// Package-level unexported variables for the singleton:
//   - globalConfig is unexported so other packages go through Get().
//   - configOnce ensures InitGlobal() only runs once.
//   - configMu protects concurrent access during startup.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults returns a Config preloaded with the robot's tuned constants.
func defaults() *Config {
	return &Config{
		SerialBaud:          115200,
		MQTTClientIDBalance: "ballbot-balance",
		MQTTClientIDConsole: "ballbot-console-subscriber",
		MQTTClientIDWeb:     "ballbot-web-subscriber",
		TopicPose:           "ballbot/pose",
		TopicTorque:         "ballbot/torque",
		TopicDuty:           "ballbot/duty",
		TopicTiming:         "ballbot/timing",
		ControlFreqHz:       200,
		WheelRadiusM:        0.0048,
		BallRadiusM:         0.1210,
		WheelAlphaDeg:       45,
		ThetaKP:             11.0,
		ThetaKI:             0.0,
		ThetaKD:             0.1,
		MaxTiltDeg:          5,
		MaxBallVelocity:     0.5,
		MaxDuty:             0.8,
		MaxYawTorque:        0.5,
		RotationTimeMS:      750,
		SafetyHoldPolicy:    "hold",
		JoystickDevice:      "/dev/input/js0",
		LEDSPIDevice:        "/dev/spidev0.0",
		LEDCount:            72,
		LEDIntensity:        14,
		TelemetryDecimation: 20,
		WebServerPort:       8080,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Motor-controller link
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD":
		var baud int
		if baud, err = parseInt(key, value); err == nil {
			if baud <= 0 {
				return fmt.Errorf("SERIAL_BAUD must be positive, got %d", baud)
			}
			c.SerialBaud = uint(baud)
		}

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_BALANCE":
		c.MQTTClientIDBalance = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_POSE":
		c.TopicPose = value
	case "TOPIC_TORQUE":
		c.TopicTorque = value
	case "TOPIC_DUTY":
		c.TopicDuty = value
	case "TOPIC_TIMING":
		c.TopicTiming = value

	// Control loop
	case "CONTROL_FREQ_HZ":
		var hz int
		if hz, err = parseInt(key, value); err == nil {
			if hz <= 0 {
				return fmt.Errorf("CONTROL_FREQ_HZ must be positive, got %d", hz)
			}
			c.ControlFreqHz = hz
		}
	case "FADE_TIME_MS":
		c.FadeTimeMS, err = parseInt(key, value)

	// Physical constants
	case "WHEEL_RADIUS_M":
		c.WheelRadiusM, err = parseFloat(key, value)
	case "BALL_RADIUS_M":
		c.BallRadiusM, err = parseFloat(key, value)
	case "WHEEL_ALPHA_DEG":
		c.WheelAlphaDeg, err = parseFloat(key, value)

	// Gains
	case "THETA_KP":
		c.ThetaKP, err = parseFloat(key, value)
	case "THETA_KI":
		c.ThetaKI, err = parseFloat(key, value)
	case "THETA_KD":
		c.ThetaKD, err = parseFloat(key, value)

	// Limits
	case "MAX_TILT_DEG":
		c.MaxTiltDeg, err = parseFloat(key, value)
	case "MAX_BALL_VELOCITY":
		c.MaxBallVelocity, err = parseFloat(key, value)
	case "MAX_DUTY":
		c.MaxDuty, err = parseFloat(key, value)
	case "MAX_YAW_TORQUE":
		c.MaxYawTorque, err = parseFloat(key, value)
	case "ROTATION_TIME_MS":
		c.RotationTimeMS, err = parseInt(key, value)

	// Safety envelope
	case "SAFETY_HOLD_POLICY":
		if value != "hold" && value != "zero" {
			return fmt.Errorf("SAFETY_HOLD_POLICY must be \"hold\" or \"zero\", got %q", value)
		}
		c.SafetyHoldPolicy = value
	case "SAFETY_GATE_ROLL":
		c.SafetyGateRoll, err = parseBool(key, value)

	// Joystick
	case "JOYSTICK_DEVICE":
		c.JoystickDevice = value

	// LED ring
	case "LED_ENABLED":
		c.LEDEnabled, err = parseBool(key, value)
	case "LED_SPI_DEVICE":
		c.LEDSPIDevice = value
	case "LED_COUNT":
		var n int
		if n, err = parseInt(key, value); err == nil {
			if n <= 0 {
				return fmt.Errorf("LED_COUNT must be positive, got %d", n)
			}
			c.LEDCount = n
		}
	case "LED_INTENSITY":
		var n int
		if n, err = parseInt(key, value); err == nil {
			if n < 0 || n > 255 {
				return fmt.Errorf("LED_INTENSITY must be 0-255, got %d", n)
			}
			c.LEDIntensity = n
		}

	// Telemetry
	case "TELEMETRY_DECIMATION":
		var n int
		if n, err = parseInt(key, value); err == nil {
			if n <= 0 {
				return fmt.Errorf("TELEMETRY_DECIMATION must be positive, got %d", n)
			}
			c.TelemetryDecimation = n
		}

	// Web server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set and sane.
func (c *Config) validate() error {
	if c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required")
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.MaxDuty <= 0 || c.MaxDuty > 1 {
		return fmt.Errorf("MAX_DUTY must be in (0, 1], got %v", c.MaxDuty)
	}
	if c.MaxTiltDeg <= 0 {
		return fmt.Errorf("MAX_TILT_DEG must be positive, got %v", c.MaxTiltDeg)
	}
	return nil
}

// Period returns the control period derived from the loop frequency.
func (c *Config) Period() time.Duration {
	return time.Second / time.Duration(c.ControlFreqHz)
}

// FadeTime returns the shutdown fade-out window.
func (c *Config) FadeTime() time.Duration {
	return time.Duration(c.FadeTimeMS) * time.Millisecond
}

// RotationTime returns the yaw pulse window.
func (c *Config) RotationTime() time.Duration {
	return time.Duration(c.RotationTimeMS) * time.Millisecond
}

// AlphaRad returns the wheel mounting half-angle in radians.
func (c *Config) AlphaRad() float64 {
	return c.WheelAlphaDeg * math.Pi / 180
}

// MaxTiltRad returns the tilt limit in radians.
func (c *Config) MaxTiltRad() float64 {
	return c.MaxTiltDeg * math.Pi / 180
}

// InitGlobal initializes the global configuration from file. Uses
// sync.Once so this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be
// called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
