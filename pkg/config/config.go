package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Serial    SerialConfig    `yaml:"serial"`
	ADC       ADCConfig       `yaml:"adc"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Mock      MockConfig      `yaml:"mock"`
	Display   DisplayConfig   `yaml:"display"`
	Log       LogConfig       `yaml:"log"`
}

// DeviceConfig identifies the appliance and where its calibration lives.
type DeviceConfig struct {
	Name            string `yaml:"name"`
	CalibrationFile string `yaml:"calibration_file"`
}

// SerialConfig contains the ADC bridge serial port configuration.
type SerialConfig struct {
	Port              string        `yaml:"port"`
	BaudRate          int           `yaml:"baud_rate"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// ADCConfig describes the analog front-end transfer ratio.
type ADCConfig struct {
	ReferenceVoltage float64 `yaml:"reference_voltage"`
	FullScale        float64 `yaml:"full_scale"`
}

// EstimatorConfig contains RMS estimator timing and filtering parameters.
type EstimatorConfig struct {
	Window         time.Duration `yaml:"window"`          // Acquisition burst per cycle
	Period         time.Duration `yaml:"period"`          // Time between cycle starts
	Alpha          float64       `yaml:"alpha"`           // EMA weight of the newest candidate
	NoiseFloorADC  float64       `yaml:"noise_floor_adc"` // Below this RMS (ADC counts) mains is reported as exactly 0
	SnapVolts      float64       `yaml:"snap_volts"`      // Previous value below this snaps to the new candidate
	BatterySamples int           `yaml:"battery_samples"`
	BatterySpacing time.Duration `yaml:"battery_spacing"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// AlertsConfig contains debounce/repeat timing and control loop cadence.
type AlertsConfig struct {
	Debounce            time.Duration `yaml:"debounce"`
	Repeat              time.Duration `yaml:"repeat"`
	TemperatureDebounce time.Duration `yaml:"temperature_debounce"`
	TelemetryInterval   time.Duration `yaml:"telemetry_interval"`
	Tick                time.Duration `yaml:"tick"`
}

// MQTTConfig contains message bus connection parameters.
type MQTTConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	ClientID     string        `yaml:"client_id"` // Empty means a random id per process
	DataTopic    string        `yaml:"data_topic"`
	CommandTopic string        `yaml:"command_topic"`
	KeepAlive    time.Duration `yaml:"keep_alive"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

// MockConfig contains mock source configuration.
type MockConfig struct {
	MainsVolts   float64       `yaml:"mains_volts"`   // Simulated mains RMS (V)
	Frequency    float64       `yaml:"frequency"`     // Mains frequency (Hz)
	DCOffset     float64       `yaml:"dc_offset"`     // Front-end bias (ADC counts)
	NoiseADC     float64       `yaml:"noise_adc"`     // Peak noise amplitude (ADC counts)
	BatteryVolts float64       `yaml:"battery_volts"` // Simulated battery (V)
	Temperature  float64       `yaml:"temperature"`   // Simulated ambient (°C)
	Humidity     float64       `yaml:"humidity"`      // Simulated humidity (%RH)
	SampleRate   time.Duration `yaml:"sample_rate"`   // Spacing between mains samples
}

// DisplayConfig selects the status renderer.
type DisplayConfig struct {
	Mode  string `yaml:"mode"`  // log or term
	Clear bool   `yaml:"clear"` // term only: clear the screen before each frame
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text (colored), plain or json
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:            "coldmon",
			CalibrationFile: "calibration.yaml",
		},
		Serial: SerialConfig{
			Port:              "/dev/ttyACM0",
			BaudRate:          921600,
			ReconnectInterval: 2 * time.Second,
		},
		ADC: ADCConfig{
			ReferenceVoltage: 3.3,
			FullScale:        4095,
		},
		Estimator: EstimatorConfig{
			Window:         100 * time.Millisecond, // ~6 cycles at 60 Hz, 5 at 50 Hz
			Period:         250 * time.Millisecond,
			Alpha:          0.3,
			NoiseFloorADC:  10,
			SnapVolts:      1.0,
			BatterySamples: 10,
			BatterySpacing: 2 * time.Millisecond,
			ReadTimeout:    50 * time.Millisecond,
		},
		Alerts: AlertsConfig{
			Debounce:            5 * time.Second,
			Repeat:              10 * time.Minute,
			TemperatureDebounce: 30 * time.Minute,
			TelemetryInterval:   5 * time.Minute,
			Tick:                500 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Host:         "localhost",
			Port:         1883,
			DataTopic:    "esp32c3/data",
			CommandTopic: "esp32c3/status/action",
			KeepAlive:    60 * time.Second,
			ReconnectMin: time.Second,
			ReconnectMax: 15 * time.Second,
		},
		Mock: MockConfig{
			MainsVolts:   220.0,
			Frequency:    60.0,
			DCOffset:     2048,
			NoiseADC:     2,
			BatteryVolts: 12.6,
			Temperature:  3.5,
			Humidity:     70.0,
			SampleRate:   500 * time.Microsecond,
		},
		Display: DisplayConfig{
			Mode: "log",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Device.Name == "" {
		c.Device.Name = def.Device.Name
	}
	if c.Device.CalibrationFile == "" {
		c.Device.CalibrationFile = def.Device.CalibrationFile
	}

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.ReconnectInterval <= 0 {
		c.Serial.ReconnectInterval = def.Serial.ReconnectInterval
	}

	if c.ADC.ReferenceVoltage <= 0 {
		c.ADC.ReferenceVoltage = def.ADC.ReferenceVoltage
	}
	if c.ADC.FullScale <= 0 {
		c.ADC.FullScale = def.ADC.FullScale
	}

	e := &c.Estimator
	if e.Window <= 0 {
		e.Window = def.Estimator.Window
	}
	if e.Period <= 0 {
		e.Period = def.Estimator.Period
	}
	if e.Alpha <= 0 || e.Alpha > 1 {
		e.Alpha = def.Estimator.Alpha
	}
	if e.NoiseFloorADC <= 0 {
		e.NoiseFloorADC = def.Estimator.NoiseFloorADC
	}
	if e.SnapVolts <= 0 {
		e.SnapVolts = def.Estimator.SnapVolts
	}
	if e.BatterySamples <= 0 {
		e.BatterySamples = def.Estimator.BatterySamples
	}
	if e.BatterySpacing < 0 {
		e.BatterySpacing = def.Estimator.BatterySpacing
	}
	if e.ReadTimeout <= 0 {
		e.ReadTimeout = def.Estimator.ReadTimeout
	}

	a := &c.Alerts
	if a.Debounce <= 0 {
		a.Debounce = def.Alerts.Debounce
	}
	if a.Repeat <= 0 {
		a.Repeat = def.Alerts.Repeat
	}
	if a.TemperatureDebounce <= 0 {
		a.TemperatureDebounce = def.Alerts.TemperatureDebounce
	}
	if a.TelemetryInterval <= 0 {
		a.TelemetryInterval = def.Alerts.TelemetryInterval
	}
	if a.Tick <= 0 {
		a.Tick = def.Alerts.Tick
	}

	m := &c.MQTT
	if m.Host == "" {
		m.Host = def.MQTT.Host
	}
	if m.Port <= 0 {
		m.Port = def.MQTT.Port
	}
	if m.DataTopic == "" {
		m.DataTopic = def.MQTT.DataTopic
	}
	if m.CommandTopic == "" {
		m.CommandTopic = def.MQTT.CommandTopic
	}
	if m.KeepAlive <= 0 {
		m.KeepAlive = def.MQTT.KeepAlive
	}
	if m.ReconnectMin <= 0 {
		m.ReconnectMin = def.MQTT.ReconnectMin
	}
	if m.ReconnectMax < m.ReconnectMin {
		m.ReconnectMax = max(def.MQTT.ReconnectMax, m.ReconnectMin)
	}

	if c.Mock.Frequency <= 0 {
		c.Mock.Frequency = def.Mock.Frequency
	}
	if c.Mock.SampleRate <= 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}

	if c.Display.Mode == "" {
		c.Display.Mode = def.Display.Mode
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}
