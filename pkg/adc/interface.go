package adc

import (
	"errors"
	"time"

	"github.com/chewxy/math32"
)

var (
	// ErrTimeout is returned when no mains sample arrived within the read timeout.
	ErrTimeout = errors.New("adc: read timeout")
	// ErrNotConnected is returned by reads on a closed or never opened device.
	ErrNotConnected = errors.New("adc: not connected")
	// ErrNoData is returned when a channel has not reported any value yet.
	ErrNoData = errors.New("adc: no data")
)

// Source provides raw analog-to-digital reads of the two sensing pins.
// Values are in 0..MaxValue.
type Source interface {
	ReadVoltage() (uint16, error)
	ReadBattery() (uint16, error)
}

// Environment provides the slow digital sensors. Their values are only
// meaningful while IsConnected reports true.
type Environment interface {
	Ambient() (Ambient, bool)
	DoorOpen() bool
	IsConnected() bool
}

// Device defines the interface for ADC bridges (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Source
	Environment
}

// MaxValue is the largest raw reading of the 12-bit converter.
const MaxValue = 4095

// Ambient is a temperature/humidity reading.
type Ambient struct {
	Temperature float32 // °C
	Humidity    float32 // %RH
	At          time.Time
}

// Valid reports whether the reading is inside the sensor's physical range.
func (a Ambient) Valid() bool {
	if math32.IsNaN(a.Temperature) || math32.IsNaN(a.Humidity) {
		return false
	}
	if math32.IsInf(a.Temperature, 0) || math32.IsInf(a.Humidity, 0) {
		return false
	}
	return a.Temperature >= -40 && a.Temperature <= 85 && a.Humidity >= 0 && a.Humidity <= 100
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
