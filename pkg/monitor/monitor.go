// Package monitor is the control loop of the appliance.
//
// On every tick it reads the latest estimator output and the slow sensors,
// evaluates one alert.Condition per monitored signal, forwards transitions to
// the notifier and the display, and tracks temperature records. Operator
// commands arrive from the notifier's goroutine and are queued so that every
// Condition is only ever touched from the loop.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/itohio/coldmon/pkg/adc"
	"github.com/itohio/coldmon/pkg/alert"
	"github.com/itohio/coldmon/pkg/calibration"
	"github.com/itohio/coldmon/pkg/config"
	"github.com/itohio/coldmon/pkg/display"
	"github.com/itohio/coldmon/pkg/notify"
	"github.com/itohio/coldmon/pkg/reading"
)

// Condition names. They double as the TIPO suffix on the wire.
const (
	CondOutage       = "energia"
	CondVoltageRange = "tensao"
	CondBattery      = "bateria"
	CondDoor         = "porta"
	CondTemperature  = "temperatura"
)

const (
	commandQueueSize = 16
	messageDuration  = 15 * time.Second
)

// Publisher sends messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg notify.Message) error
	IsConnected() bool
}

// Calibrator receives calibration changes without a restart.
type Calibrator interface {
	SetVoltageCalibration(factor float64)
	SetBatteryCalibration(factor float64)
	SetOutageThreshold(volts float64)
}

// Options are the loop timings.
type Options struct {
	Device              string
	Debounce            time.Duration
	Repeat              time.Duration
	TemperatureDebounce time.Duration
	TelemetryInterval   time.Duration
	Tick                time.Duration
}

// OptionsFromConfig builds Options from the application configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Device:              cfg.Device.Name,
		Debounce:            cfg.Alerts.Debounce,
		Repeat:              cfg.Alerts.Repeat,
		TemperatureDebounce: cfg.Alerts.TemperatureDebounce,
		TelemetryInterval:   cfg.Alerts.TelemetryInterval,
		Tick:                cfg.Alerts.Tick,
	}
}

// Deps are the collaborators of the loop. Display may be nil.
type Deps struct {
	Readings    *reading.Shared
	Environment adc.Environment
	Store       calibration.Store
	Calibrator  Calibrator
	Publisher   Publisher
	Display     display.Display
}

// Monitor is the control loop.
type Monitor struct {
	opts Options
	deps Deps
	log  *slog.Logger
	now  func() time.Time

	conds       []*alert.Condition
	byName      map[string]*alert.Condition
	maintenance bool
	lastReport  time.Time
	commands    chan notify.Command

	// Latest observations, refreshed every tick.
	reading    reading.Reading
	hasReading bool
	ambient    adc.Ambient
	hasAmbient bool
	door       bool
	bridgeDown bool
}

// New creates a control loop. The store must already be loaded.
func New(opts Options, deps Deps, logger *slog.Logger) *Monitor {
	def := OptionsFromConfig(config.Default())
	if opts.Tick <= 0 {
		opts.Tick = def.Tick
	}
	if opts.TelemetryInterval <= 0 {
		opts.TelemetryInterval = def.TelemetryInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := deps.Store.Settings()
	m := &Monitor{
		opts:     opts,
		deps:     deps,
		log:      logger.With("component", "monitor"),
		now:      time.Now,
		byName:   make(map[string]*alert.Condition),
		commands: make(chan notify.Command, commandQueueSize),
	}
	m.add(alert.New(CondOutage, opts.Debounce, opts.Repeat))
	m.add(alert.New(CondVoltageRange, opts.Debounce, opts.Repeat))
	m.add(alert.New(CondBattery, opts.Debounce, opts.Repeat))
	m.add(alert.New(CondDoor, doorDebounce(s), opts.Repeat))
	m.add(alert.New(CondTemperature, opts.TemperatureDebounce, opts.Repeat))
	return m
}

func (m *Monitor) add(c *alert.Condition) {
	m.conds = append(m.conds, c)
	m.byName[c.Name()] = c
}

func doorDebounce(s calibration.Settings) time.Duration {
	return time.Duration(s.DoorMaxOpenSeconds) * time.Second
}

// HandleCommand queues cmd for the loop. It never blocks; when the queue is
// full the command is dropped. Suitable as a notify.Handler.
func (m *Monitor) HandleCommand(cmd notify.Command) {
	select {
	case m.commands <- cmd:
	default:
		m.log.Warn("command queue full, dropping", "intent", cmd.Intent)
	}
}

// Maintenance reports whether alert forwarding is suspended. Like Tick it
// must only be called from the goroutine that runs the loop.
func (m *Monitor) Maintenance() bool { return m.maintenance }

// Condition returns a monitored condition by name.
func (m *Monitor) Condition(name string) *alert.Condition { return m.byName[name] }

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.Tick)
	defer ticker.Stop()

	m.log.Info("control loop started", "tick", m.opts.Tick, "device", m.opts.Device)
	defer m.log.Info("control loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-m.commands:
			m.execute(ctx, cmd)
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one control iteration.
func (m *Monitor) Tick(ctx context.Context) {
	now := m.now()
	s := m.deps.Store.Settings()
	m.observe()

	if !m.bridgeDown {
		s = m.evaluate(ctx, s, now)
	}

	if now.Sub(m.lastReport) >= m.opts.TelemetryInterval {
		m.lastReport = now
		m.publish(ctx, m.message(notify.TypePeriodic, "", s, now))
	}

	if m.deps.Display != nil {
		m.deps.Display.Update(m.status())
	}
}

// evaluate updates temperature records and steps every condition, forwarding
// transitions. It returns the settings as updated by the records.
func (m *Monitor) evaluate(ctx context.Context, s calibration.Settings, now time.Time) calibration.Settings {
	if m.hasAmbient {
		if _, err := m.deps.Store.UpdateRecords(float64(m.ambient.Temperature)); err != nil {
			m.log.Warn("failed to persist temperature records", "err", err)
		}
		s = m.deps.Store.Settings()
	}

	for _, c := range m.conds {
		tr := c.Check(m.abnormal(c.Name(), s), now)
		if tr == alert.None {
			continue
		}
		m.log.Info("alert transition", "condition", c.Name(), "transition", tr.String())
		m.forward(ctx, c.Name(), tr, s, now)
	}
	return s
}

// observe refreshes the latest observations. While the bridge is down the
// previous ones are held and no condition is evaluated, so a dead bridge is
// neither an outage nor a recovery.
func (m *Monitor) observe() {
	r, ok := m.deps.Readings.Load()
	down := !m.deps.Environment.IsConnected() || (ok && !r.Acquired())
	if down != m.bridgeDown {
		if down {
			m.log.Warn("ADC bridge not delivering samples, holding last readings", "read_errors", r.ReadErrors)
		} else {
			m.log.Info("ADC bridge delivering samples again")
		}
		m.bridgeDown = down
	}
	if down {
		return
	}

	m.reading, m.hasReading = r, ok
	m.ambient, m.hasAmbient = m.deps.Environment.Ambient()
	m.door = m.deps.Environment.DoorOpen()
}

// abnormal evaluates the predicate of one condition. Disabled monitoring and
// missing data read as normal.
func (m *Monitor) abnormal(name string, s calibration.Settings) bool {
	r := m.reading
	switch name {
	case CondOutage:
		return s.MonitorVoltage && m.hasReading && r.Volts < s.VoltageOutage
	case CondVoltageRange:
		return s.MonitorVoltage && m.hasReading && r.Volts >= s.VoltageOutage &&
			(r.Volts > s.VoltageMax || r.Volts < s.VoltageMin)
	case CondBattery:
		return s.MonitorBattery && m.hasReading && r.Battery < s.BatteryMin
	case CondDoor:
		return s.MonitorDoor && m.door
	case CondTemperature:
		t := float64(m.ambient.Temperature)
		return s.MonitorAmbient && m.hasAmbient && (t > s.AlarmMax || t < s.AlarmMin)
	}
	return false
}

func (m *Monitor) forward(ctx context.Context, name string, tr alert.Transition, s calibration.Settings, now time.Time) {
	typ, ok := notify.AlertType(name, tr)
	if !ok {
		return
	}
	text := alertText(name, tr, m.reading, m.ambient)

	if m.maintenance {
		m.log.Debug("maintenance mode, alert not forwarded", "condition", name, "type", typ)
		return
	}

	m.publish(ctx, m.message(typ, text, s, now))
	if m.deps.Display != nil {
		m.deps.Display.ShowMessage(text, messageDuration)
	}
}

func (m *Monitor) publish(ctx context.Context, msg notify.Message) {
	if err := m.deps.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, notify.ErrNotConnected) {
			m.log.Debug("bus offline, message dropped", "type", msg.Type)
			return
		}
		m.log.Warn("publish failed", "type", msg.Type, "err", err)
	}
}

func (m *Monitor) message(typ, text string, s calibration.Settings, now time.Time) notify.Message {
	msg := notify.Message{
		Device:  m.opts.Device,
		Type:    typ,
		Voltage: round(m.reading.Volts, 1),
		Battery: round(m.reading.Battery, 2),
		Door:    notify.DoorState(m.door),
		Alert:   text,
		Date:    now.Format("02/01/2006"),
		Time:    now.Format("15:04:05"),
	}
	if m.hasAmbient {
		t := round(float64(m.ambient.Temperature), 2)
		h := round(float64(m.ambient.Humidity), 1)
		msg.Temperature, msg.Humidity = &t, &h
	}
	if s.TempMaxRecord > calibration.DefaultTempMaxRecord {
		v := s.TempMaxRecord
		msg.Max = &v
	}
	if s.TempMinRecord < calibration.DefaultTempMinRecord {
		v := s.TempMinRecord
		msg.Min = &v
	}
	return msg
}

func (m *Monitor) status() display.Status {
	st := display.Status{
		Volts:       m.reading.Volts,
		Battery:     m.reading.Battery,
		Temperature: m.ambient.Temperature,
		Humidity:    m.ambient.Humidity,
		HasAmbient:  m.hasAmbient,
		DoorOpen:    m.door,
		Online:      m.deps.Publisher.IsConnected(),
		Maintenance: m.maintenance,
	}
	for _, c := range m.conds {
		if c.Active() {
			st.Active = append(st.Active, c.Name())
		}
	}
	return st
}
