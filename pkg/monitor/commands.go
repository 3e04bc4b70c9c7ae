package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/itohio/coldmon/pkg/calibration"
	"github.com/itohio/coldmon/pkg/notify"
)

// minCalibrationVolts is the smallest measured value a calibration may be
// scaled from.
const minCalibrationVolts = 1.0

var errNoSignal = errors.New("no signal to calibrate against")

// configPatch is the valor of a configurar command. Absent fields are left
// unchanged.
type configPatch struct {
	VoltageCalibration *float64 `json:"voltage_calibration"`
	BatteryCalibration *float64 `json:"battery_calibration"`
	BatteryMin         *float64 `json:"battery_min"`
	DoorMaxOpenSeconds *int     `json:"door_max_open_seconds"`
	VoltageOutage      *float64 `json:"voltage_outage"`
	VoltageMax         *float64 `json:"voltage_max"`
	VoltageMin         *float64 `json:"voltage_min"`
	AlarmMax           *float64 `json:"alarm_max"`
	AlarmMin           *float64 `json:"alarm_min"`
	MonitorVoltage     *bool    `json:"monitor_voltage"`
	MonitorBattery     *bool    `json:"monitor_battery"`
	MonitorDoor        *bool    `json:"monitor_door"`
	MonitorAmbient     *bool    `json:"monitor_ambient"`
}

func (p configPatch) apply(s *calibration.Settings) {
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setB := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setF(&s.VoltageCalibration, p.VoltageCalibration)
	setF(&s.BatteryCalibration, p.BatteryCalibration)
	setF(&s.BatteryMin, p.BatteryMin)
	if p.DoorMaxOpenSeconds != nil {
		s.DoorMaxOpenSeconds = *p.DoorMaxOpenSeconds
	}
	setF(&s.VoltageOutage, p.VoltageOutage)
	setF(&s.VoltageMax, p.VoltageMax)
	setF(&s.VoltageMin, p.VoltageMin)
	setF(&s.AlarmMax, p.AlarmMax)
	setF(&s.AlarmMin, p.AlarmMin)
	setB(&s.MonitorVoltage, p.MonitorVoltage)
	setB(&s.MonitorBattery, p.MonitorBattery)
	setB(&s.MonitorDoor, p.MonitorDoor)
	setB(&s.MonitorAmbient, p.MonitorAmbient)
}

// execute runs one operator command on the loop goroutine and publishes its
// feedback. Failures are reported back as feedback_comando.
func (m *Monitor) execute(ctx context.Context, cmd notify.Command) {
	m.observe()

	typ, text, err := m.apply(cmd)
	if err != nil {
		m.log.Warn("command failed", "intent", cmd.Intent, "err", err)
		typ, text = notify.TypeCommandFeedback, "Erro: "+err.Error()
	} else {
		m.log.Info("command applied", "intent", cmd.Intent, "type", typ)
	}

	m.publish(ctx, m.message(typ, text, m.deps.Store.Settings(), m.now()))
}

func (m *Monitor) apply(cmd notify.Command) (typ, text string, err error) {
	switch cmd.Intent {
	case notify.IntentStatus:
		return notify.TypeStatus, "", nil

	case notify.IntentCalibrateVoltage:
		ref, err := cmd.Float()
		if err != nil {
			return "", "", err
		}
		if !m.hasReading || m.reading.VoltsRaw < minCalibrationVolts {
			return "", "", fmt.Errorf("%s: %w", cmd.Intent, errNoSignal)
		}
		factor := m.deps.Store.Settings().VoltageCalibration * ref / m.reading.VoltsRaw
		if err := m.deps.Store.SetVoltageCalibration(factor); err != nil {
			return "", "", err
		}
		m.deps.Calibrator.SetVoltageCalibration(factor)
		return notify.TypeCalibrationOK, fmt.Sprintf("Tensao calibrada: fator %.2f", factor), nil

	case notify.IntentCalibrateBattery:
		ref, err := cmd.Float()
		if err != nil {
			return "", "", err
		}
		if !m.hasReading || m.reading.Battery < minCalibrationVolts {
			return "", "", fmt.Errorf("%s: %w", cmd.Intent, errNoSignal)
		}
		factor := m.deps.Store.Settings().BatteryCalibration * ref / m.reading.Battery
		if err := m.deps.Store.SetBatteryCalibration(factor); err != nil {
			return "", "", err
		}
		m.deps.Calibrator.SetBatteryCalibration(factor)
		return notify.TypeCalibrationOK, fmt.Sprintf("Bateria calibrada: fator %.3f", factor), nil

	case notify.IntentConfigure:
		var patch configPatch
		if err := cmd.Decode(&patch); err != nil {
			return "", "", err
		}
		s, err := m.deps.Store.Update(patch.apply)
		if err != nil {
			return "", "", err
		}
		m.applySettings(s)
		return notify.TypeConfigFeedback, "Configuracao atualizada", nil

	case notify.IntentMaintenance:
		on, err := cmd.Bool()
		if err != nil {
			return "", "", err
		}
		m.maintenance = on
		if on {
			return notify.TypeMaintenanceOn, "Modo manutencao ativado", nil
		}
		return notify.TypeMaintenanceOff, "Modo manutencao desativado", nil

	case notify.IntentResetRecords:
		temp := math.NaN()
		if m.hasAmbient {
			temp = float64(m.ambient.Temperature)
		}
		if err := m.deps.Store.ResetRecords(temp); err != nil {
			return "", "", err
		}
		return notify.TypeCommandFeedback, "Max/Min resetados", nil
	}

	return "", "", fmt.Errorf("unknown intent %q", cmd.Intent)
}

// applySettings pushes persisted values that live outside the store.
func (m *Monitor) applySettings(s calibration.Settings) {
	m.deps.Calibrator.SetVoltageCalibration(s.VoltageCalibration)
	m.deps.Calibrator.SetBatteryCalibration(s.BatteryCalibration)
	m.deps.Calibrator.SetOutageThreshold(s.VoltageOutage)
	m.byName[CondDoor].SetDebounce(doorDebounce(s))
}
