// Package calibration persists the operator-adjustable calibration factors,
// thresholds and monitoring toggles of the appliance.
//
// Values read back from storage are validated field by field. Anything out of
// range (or NaN) is replaced with its documented default and written back
// immediately, so a corrupted or blank store heals itself on the first boot.
package calibration

import (
	"fmt"
	"math"
)

// Defaults for every persisted field.
const (
	DefaultVoltageCalibration = 570.0
	DefaultBatteryCalibration = 5.28
	DefaultBatteryMin         = 11.5
	DefaultDoorMaxOpenSeconds = 30
	DefaultVoltageOutage      = 20.0
	DefaultVoltageMax         = 245.0
	DefaultVoltageMin         = 190.0
	DefaultAlarmMax           = 8.0
	DefaultAlarmMin           = 2.5

	// Record sentinels: any plausible reading replaces them.
	DefaultTempMaxRecord = -50.0
	DefaultTempMinRecord = 100.0
)

// Validation limits.
const (
	VoltageCalibrationMin = 10.0
	VoltageCalibrationMax = 1000.0
	BatteryCalibrationMax = 10.0 // Lower bound is exclusive 0
	BatteryMinLow         = 9.0
	BatteryMinHigh        = 15.0
	DoorMaxOpenLow        = 5
	DoorMaxOpenHigh       = 300
	VoltageOutageLow      = 1.0
	VoltageOutageHigh     = 100.0
	VoltageLimitHigh      = 400.0
	TemperatureLow        = -40.0
	TemperatureHigh       = 80.0
)

// Settings is the persisted calibration and threshold record.
type Settings struct {
	VoltageCalibration float64 `yaml:"voltage_calibration"`
	BatteryCalibration float64 `yaml:"battery_calibration"`
	BatteryMin         float64 `yaml:"battery_min"`           // Volts
	DoorMaxOpenSeconds int     `yaml:"door_max_open_seconds"` // Seconds
	VoltageOutage      float64 `yaml:"voltage_outage"`        // Volts; mains below this reads as 0
	VoltageMax         float64 `yaml:"voltage_max"`
	VoltageMin         float64 `yaml:"voltage_min"`
	AlarmMax           float64 `yaml:"alarm_max"` // °C
	AlarmMin           float64 `yaml:"alarm_min"` // °C
	TempMaxRecord      float64 `yaml:"temp_max_record"`
	TempMinRecord      float64 `yaml:"temp_min_record"`

	MonitorVoltage bool `yaml:"monitor_voltage"`
	MonitorBattery bool `yaml:"monitor_battery"`
	MonitorDoor    bool `yaml:"monitor_door"`
	MonitorAmbient bool `yaml:"monitor_ambient"`
}

// Default returns the factory settings. Monitoring toggles start disabled.
func Default() Settings {
	return Settings{
		VoltageCalibration: DefaultVoltageCalibration,
		BatteryCalibration: DefaultBatteryCalibration,
		BatteryMin:         DefaultBatteryMin,
		DoorMaxOpenSeconds: DefaultDoorMaxOpenSeconds,
		VoltageOutage:      DefaultVoltageOutage,
		VoltageMax:         DefaultVoltageMax,
		VoltageMin:         DefaultVoltageMin,
		AlarmMax:           DefaultAlarmMax,
		AlarmMin:           DefaultAlarmMin,
		TempMaxRecord:      DefaultTempMaxRecord,
		TempMinRecord:      DefaultTempMinRecord,
	}
}

// RangeError reports an operator-supplied value outside its valid range.
type RangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s=%g out of range [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// Repair replaces every invalid field with its default and returns the names
// of the fields it touched. A nil result means s was already valid.
func (s *Settings) Repair() []string {
	var fixed []string
	fix := func(name string) { fixed = append(fixed, name) }

	if !inRange(s.VoltageCalibration, VoltageCalibrationMin, VoltageCalibrationMax) {
		s.VoltageCalibration = DefaultVoltageCalibration
		fix("voltage_calibration")
	}
	if math.IsNaN(s.BatteryCalibration) || s.BatteryCalibration <= 0 || s.BatteryCalibration > BatteryCalibrationMax {
		s.BatteryCalibration = DefaultBatteryCalibration
		fix("battery_calibration")
	}
	if !inRange(s.BatteryMin, BatteryMinLow, BatteryMinHigh) {
		s.BatteryMin = DefaultBatteryMin
		fix("battery_min")
	}
	if s.DoorMaxOpenSeconds < DoorMaxOpenLow || s.DoorMaxOpenSeconds > DoorMaxOpenHigh {
		s.DoorMaxOpenSeconds = DefaultDoorMaxOpenSeconds
		fix("door_max_open_seconds")
	}
	if !inRange(s.VoltageOutage, VoltageOutageLow, VoltageOutageHigh) {
		s.VoltageOutage = DefaultVoltageOutage
		fix("voltage_outage")
	}
	if !inRange(s.VoltageMax, 0, VoltageLimitHigh) || !inRange(s.VoltageMin, 0, VoltageLimitHigh) ||
		s.VoltageMin >= s.VoltageMax {
		s.VoltageMax = DefaultVoltageMax
		s.VoltageMin = DefaultVoltageMin
		fix("voltage_limits")
	}
	if !inRange(s.AlarmMax, TemperatureLow, TemperatureHigh) || !inRange(s.AlarmMin, TemperatureLow, TemperatureHigh) ||
		s.AlarmMin >= s.AlarmMax {
		s.AlarmMax = DefaultAlarmMax
		s.AlarmMin = DefaultAlarmMin
		fix("alarm_limits")
	}
	if math.IsNaN(s.TempMaxRecord) || s.TempMaxRecord > TemperatureHigh {
		s.TempMaxRecord = DefaultTempMaxRecord
		fix("temp_max_record")
	}
	if math.IsNaN(s.TempMinRecord) || s.TempMinRecord < TemperatureLow {
		s.TempMinRecord = DefaultTempMinRecord
		fix("temp_min_record")
	}

	return fixed
}

// Validate reports the first invalid field without modifying s.
func (s Settings) Validate() error {
	if !inRange(s.VoltageCalibration, VoltageCalibrationMin, VoltageCalibrationMax) {
		return &RangeError{"voltage_calibration", s.VoltageCalibration, VoltageCalibrationMin, VoltageCalibrationMax}
	}
	if math.IsNaN(s.BatteryCalibration) || s.BatteryCalibration <= 0 || s.BatteryCalibration > BatteryCalibrationMax {
		return &RangeError{"battery_calibration", s.BatteryCalibration, 0, BatteryCalibrationMax}
	}
	if !inRange(s.BatteryMin, BatteryMinLow, BatteryMinHigh) {
		return &RangeError{"battery_min", s.BatteryMin, BatteryMinLow, BatteryMinHigh}
	}
	if s.DoorMaxOpenSeconds < DoorMaxOpenLow || s.DoorMaxOpenSeconds > DoorMaxOpenHigh {
		return &RangeError{"door_max_open_seconds", float64(s.DoorMaxOpenSeconds), DoorMaxOpenLow, DoorMaxOpenHigh}
	}
	if !inRange(s.VoltageOutage, VoltageOutageLow, VoltageOutageHigh) {
		return &RangeError{"voltage_outage", s.VoltageOutage, VoltageOutageLow, VoltageOutageHigh}
	}
	if !inRange(s.VoltageMax, 0, VoltageLimitHigh) {
		return &RangeError{"voltage_max", s.VoltageMax, 0, VoltageLimitHigh}
	}
	if !inRange(s.VoltageMin, 0, s.VoltageMax) || s.VoltageMin == s.VoltageMax {
		return &RangeError{"voltage_min", s.VoltageMin, 0, s.VoltageMax}
	}
	if !inRange(s.AlarmMax, TemperatureLow, TemperatureHigh) {
		return &RangeError{"alarm_max", s.AlarmMax, TemperatureLow, TemperatureHigh}
	}
	if !inRange(s.AlarmMin, TemperatureLow, s.AlarmMax) || s.AlarmMin == s.AlarmMax {
		return &RangeError{"alarm_min", s.AlarmMin, TemperatureLow, s.AlarmMax}
	}
	return nil
}
