package calibration

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newStore(t *testing.T, content string) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return NewFileStore(path, nil), path
}

func readBack(t *testing.T, path string) Settings {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var s Settings
	require.NoError(t, yaml.Unmarshal(data, &s))
	return s
}

func TestLoad_MissingFileWritesDefaults(t *testing.T) {
	store, path := newStore(t, "")

	s, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), s)

	assert.Equal(t, Default(), readBack(t, path))
}

func TestLoad_ValidFileUntouched(t *testing.T) {
	content := `
voltage_calibration: 612.5
battery_calibration: 4.9
battery_min: 12.0
door_max_open_seconds: 60
voltage_outage: 25
voltage_max: 240
voltage_min: 200
alarm_max: 7
alarm_min: 1
temp_max_record: 5.5
temp_min_record: 2.1
monitor_voltage: true
monitor_door: true
`
	store, path := newStore(t, content)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	s, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 612.5, s.VoltageCalibration)
	assert.Equal(t, 4.9, s.BatteryCalibration)
	assert.Equal(t, 12.0, s.BatteryMin)
	assert.Equal(t, 60, s.DoorMaxOpenSeconds)
	assert.Equal(t, 25.0, s.VoltageOutage)
	assert.True(t, s.MonitorVoltage)
	assert.False(t, s.MonitorBattery)
	assert.True(t, s.MonitorDoor)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "valid file must not be rewritten")
}

func TestLoad_RepairOnRead(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, s Settings)
	}{
		{
			name:    "voltage factor too small",
			content: "voltage_calibration: 5\n",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultVoltageCalibration, s.VoltageCalibration)
			},
		},
		{
			name:    "voltage factor too large",
			content: "voltage_calibration: 1000.5\n",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultVoltageCalibration, s.VoltageCalibration)
			},
		},
		{
			name:    "voltage factor NaN",
			content: "voltage_calibration: .nan\n",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultVoltageCalibration, s.VoltageCalibration)
			},
		},
		{
			name:    "battery factor zero",
			content: "battery_calibration: 0\n",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultBatteryCalibration, s.BatteryCalibration)
			},
		},
		{
			name:    "battery factor above ten",
			content: "battery_calibration: 10.01\n",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultBatteryCalibration, s.BatteryCalibration)
			},
		},
		{
			name:    "battery min out of range",
			content: "battery_min: 16\n",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultBatteryMin, s.BatteryMin)
			},
		},
		{
			name:    "door time too short",
			content: "door_max_open_seconds: 4\n",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultDoorMaxOpenSeconds, s.DoorMaxOpenSeconds)
			},
		},
		{
			name:    "door time too long",
			content: "door_max_open_seconds: 301\n",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultDoorMaxOpenSeconds, s.DoorMaxOpenSeconds)
			},
		},
		{
			name:    "inverted alarm limits",
			content: "alarm_max: 1\nalarm_min: 5\n",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultAlarmMax, s.AlarmMax)
				assert.Equal(t, DefaultAlarmMin, s.AlarmMin)
			},
		},
		{
			name:    "garbage document",
			content: "voltage_calibration: [not, a, number\n",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, Default(), s)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, path := newStore(t, tt.content)

			s, err := store.Load()
			require.NoError(t, err)
			tt.check(t, s)

			// Repaired values are persisted.
			persisted := readBack(t, path)
			tt.check(t, persisted)
			assert.Empty(t, persisted.Repair())
		})
	}
}

func TestBoundaryValuesAreValid(t *testing.T) {
	s := Default()
	s.VoltageCalibration = VoltageCalibrationMin
	s.BatteryCalibration = BatteryCalibrationMax
	s.BatteryMin = BatteryMinHigh
	s.DoorMaxOpenSeconds = DoorMaxOpenLow
	assert.Empty(t, s.Repair())
	assert.NoError(t, s.Validate())

	s.VoltageCalibration = VoltageCalibrationMax
	s.BatteryMin = BatteryMinLow
	s.DoorMaxOpenSeconds = DoorMaxOpenHigh
	assert.Empty(t, s.Repair())
}

func TestSetters(t *testing.T) {
	store, path := newStore(t, "")
	_, err := store.Load()
	require.NoError(t, err)

	require.NoError(t, store.SetVoltageCalibration(600))
	require.NoError(t, store.SetBatteryCalibration(5.0))
	require.NoError(t, store.SetBatteryMin(12.2))
	require.NoError(t, store.SetDoorMaxOpen(90))

	s := store.Settings()
	assert.Equal(t, 600.0, s.VoltageCalibration)
	assert.Equal(t, 5.0, s.BatteryCalibration)
	assert.Equal(t, 12.2, s.BatteryMin)
	assert.Equal(t, 90, s.DoorMaxOpenSeconds)
	assert.Equal(t, s, readBack(t, path))
}

func TestSetters_RejectOutOfRange(t *testing.T) {
	store, _ := newStore(t, "")
	_, err := store.Load()
	require.NoError(t, err)

	var rangeErr *RangeError

	err = store.SetVoltageCalibration(9.99)
	require.Error(t, err)
	assert.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, "voltage_calibration", rangeErr.Field)

	assert.Error(t, store.SetVoltageCalibration(math.NaN()))
	assert.Error(t, store.SetBatteryCalibration(0))
	assert.Error(t, store.SetBatteryMin(8.9))
	assert.Error(t, store.SetDoorMaxOpen(301))

	assert.Equal(t, Default(), store.Settings(), "rejected values must not be applied")
}

func TestUpdate_ValidatesWholeRecord(t *testing.T) {
	store, _ := newStore(t, "")
	_, err := store.Load()
	require.NoError(t, err)

	_, err = store.Update(func(s *Settings) {
		s.AlarmMax = 2
		s.AlarmMin = 4
	})
	assert.Error(t, err)
	assert.Equal(t, DefaultAlarmMax, store.Settings().AlarmMax)

	s, err := store.Update(func(s *Settings) {
		s.AlarmMax = 6
		s.MonitorAmbient = true
	})
	require.NoError(t, err)
	assert.Equal(t, 6.0, s.AlarmMax)
	assert.True(t, store.Settings().MonitorAmbient)
}

func TestUpdateRecords(t *testing.T) {
	store, path := newStore(t, "")
	_, err := store.Load()
	require.NoError(t, err)

	changed, err := store.UpdateRecords(3.5)
	require.NoError(t, err)
	assert.True(t, changed)
	s := store.Settings()
	assert.Equal(t, 3.5, s.TempMaxRecord)
	assert.Equal(t, 3.5, s.TempMinRecord)

	changed, err = store.UpdateRecords(3.0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 3.0, store.Settings().TempMinRecord)

	changed, err = store.UpdateRecords(3.2)
	require.NoError(t, err)
	assert.False(t, changed, "reading inside the records must not persist")

	changed, err = store.UpdateRecords(120)
	require.NoError(t, err)
	assert.False(t, changed, "implausible reading is ignored")

	persisted := readBack(t, path)
	assert.Equal(t, 3.5, persisted.TempMaxRecord)
	assert.Equal(t, 3.0, persisted.TempMinRecord)

	require.NoError(t, store.ResetRecords(4.0))
	s = store.Settings()
	assert.Equal(t, 4.0, s.TempMaxRecord)
	assert.Equal(t, 4.0, s.TempMinRecord)
}
