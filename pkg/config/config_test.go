package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 921600, cfg.Serial.BaudRate)
	assert.Equal(t, 2*time.Second, cfg.Serial.ReconnectInterval)
	assert.Equal(t, 3.3, cfg.ADC.ReferenceVoltage)
	assert.Equal(t, float64(4095), cfg.ADC.FullScale)
	assert.Equal(t, 100*time.Millisecond, cfg.Estimator.Window)
	assert.Equal(t, 250*time.Millisecond, cfg.Estimator.Period)
	assert.Equal(t, 0.3, cfg.Estimator.Alpha)
	assert.Equal(t, 10, cfg.Estimator.BatterySamples)
	assert.Equal(t, 5*time.Second, cfg.Alerts.Debounce)
	assert.Equal(t, 10*time.Minute, cfg.Alerts.Repeat)
	assert.Equal(t, 30*time.Minute, cfg.Alerts.TemperatureDebounce)
	assert.Equal(t, "esp32c3/data", cfg.MQTT.DataTopic)
	assert.Equal(t, "esp32c3/status/action", cfg.MQTT.CommandTopic)
	assert.Equal(t, "log", cfg.Display.Mode)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
device:
  name: "02 CENTRO"
  calibration_file: /var/lib/coldmon/calibration.yaml

serial:
  port: "/dev/ttyUSB0"
  baud_rate: 460800

estimator:
  window: 120ms
  period: 500ms
  alpha: 0.5

alerts:
  debounce: 2s
  repeat: 1m

mqtt:
  host: broker.local
  port: 8883
  username: monitor
  data_topic: site/data
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "02 CENTRO", cfg.Device.Name)
	assert.Equal(t, "/var/lib/coldmon/calibration.yaml", cfg.Device.CalibrationFile)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 460800, cfg.Serial.BaudRate)
	assert.Equal(t, 2*time.Second, cfg.Serial.ReconnectInterval) // default
	assert.Equal(t, 120*time.Millisecond, cfg.Estimator.Window)
	assert.Equal(t, 500*time.Millisecond, cfg.Estimator.Period)
	assert.Equal(t, 0.5, cfg.Estimator.Alpha)
	assert.Equal(t, 2*time.Second, cfg.Alerts.Debounce)
	assert.Equal(t, time.Minute, cfg.Alerts.Repeat)
	assert.Equal(t, "broker.local", cfg.MQTT.Host)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, "monitor", cfg.MQTT.Username)
	assert.Equal(t, "site/data", cfg.MQTT.DataTopic)
	assert.Equal(t, "esp32c3/status/action", cfg.MQTT.CommandTopic) // default
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_OutOfRangeFallsBackToDefaults(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
estimator:
  alpha: 1.5
  battery_samples: -3
mqtt:
  reconnect_min: 20s
  reconnect_max: 5s
`
	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, 0.3, cfg.Estimator.Alpha)
	assert.Equal(t, 10, cfg.Estimator.BatterySamples)
	assert.Equal(t, 20*time.Second, cfg.MQTT.ReconnectMin)
	assert.Equal(t, 20*time.Second, cfg.MQTT.ReconnectMax)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB1"
	cfg.Estimator.Period = time.Second

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	require.NoError(t, cfg.Save(tmpfile.Name()))

	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", loaded.Serial.Port)
	assert.Equal(t, time.Second, loaded.Estimator.Period)
}
