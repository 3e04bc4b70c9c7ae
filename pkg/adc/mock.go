package adc

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/itohio/coldmon/pkg/config"
)

// Mock simulates the ADC bridge for testing and development.
// Mains is synthesised as dc + A*sin(2πft) + noise, where A is derived from
// the requested RMS volts through the inverse of the estimator's transfer.
type Mock struct {
	cfg        config.MockConfig
	adc        config.ADCConfig
	voltageCal float64
	batteryCal float64

	mu        sync.RWMutex
	connected bool
	startTime time.Time
	mains     float64 // RMS volts
	battery   float64
	door      bool
	ambient   Ambient
	rng       *rand.Rand
}

// NewMock creates a new mocked device instance. voltageCal and batteryCal are
// the calibration factors the estimator will apply, so the mock produces raw
// counts that read back as the configured volts.
func NewMock(cfg *config.MockConfig, adcCfg *config.ADCConfig, voltageCal, batteryCal float64) *Mock {
	def := config.Default()
	if cfg == nil {
		cfg = &def.Mock
	}
	if adcCfg == nil {
		adcCfg = &def.ADC
	}

	return &Mock{
		cfg:        *cfg,
		adc:        *adcCfg,
		voltageCal: voltageCal,
		batteryCal: batteryCal,
		mains:      cfg.MainsVolts,
		battery:    cfg.BatteryVolts,
		ambient: Ambient{
			Temperature: float32(cfg.Temperature),
			Humidity:    float32(cfg.Humidity),
		},
		rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

// Connect simulates connecting to the device.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = time.Now()
	return nil
}

// Close stops the mocked device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SetMains sets the simulated mains RMS voltage. Zero simulates an outage.
func (m *Mock) SetMains(volts float64) {
	m.mu.Lock()
	m.mains = volts
	m.mu.Unlock()
}

// SetBattery sets the simulated battery voltage.
func (m *Mock) SetBattery(volts float64) {
	m.mu.Lock()
	m.battery = volts
	m.mu.Unlock()
}

// SetDoor sets the simulated door switch.
func (m *Mock) SetDoor(open bool) {
	m.mu.Lock()
	m.door = open
	m.mu.Unlock()
}

// SetAmbient sets the simulated temperature and humidity.
func (m *Mock) SetAmbient(temperature, humidity float32) {
	m.mu.Lock()
	m.ambient = Ambient{Temperature: temperature, Humidity: humidity}
	m.mu.Unlock()
}

// ReadVoltage returns one mains sample, paced at the configured sample rate.
func (m *Mock) ReadVoltage() (uint16, error) {
	if m.cfg.SampleRate > 0 {
		time.Sleep(m.cfg.SampleRate)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrNotConnected
	}

	t := time.Since(m.startTime).Seconds()
	peak := m.voltsToCounts(m.mains, m.voltageCal) * math.Sqrt2
	noise := (m.rng.Float64()*2 - 1) * m.cfg.NoiseADC
	v := m.cfg.DCOffset + peak*math.Sin(2*math.Pi*m.cfg.Frequency*t) + noise

	return clampCounts(v), nil
}

// ReadBattery returns one battery sample.
func (m *Mock) ReadBattery() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrNotConnected
	}

	noise := (m.rng.Float64()*2 - 1) * m.cfg.NoiseADC
	return clampCounts(m.voltsToCounts(m.battery, m.batteryCal) + noise), nil
}

// Ambient returns the simulated ambient reading.
func (m *Mock) Ambient() (Ambient, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := m.ambient
	a.At = time.Now()
	return a, a.Valid()
}

// DoorOpen returns the simulated door switch.
func (m *Mock) DoorOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.door
}

// voltsToCounts inverts volts = counts * (ref/fullScale) * cal.
func (m *Mock) voltsToCounts(volts, cal float64) float64 {
	if cal <= 0 || m.adc.ReferenceVoltage <= 0 {
		return 0
	}
	return volts / cal * m.adc.FullScale / m.adc.ReferenceVoltage
}

func clampCounts(v float64) uint16 {
	if v < 0 {
		return 0
	} else if v > MaxValue {
		return MaxValue
	}
	return uint16(v)
}
