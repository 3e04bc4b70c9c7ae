package adc

import (
	"testing"
	"time"

	"github.com/itohio/coldmon/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMockConfig() *config.MockConfig {
	return &config.MockConfig{
		MainsVolts:   220,
		Frequency:    60,
		DCOffset:     2048,
		NoiseADC:     0,
		BatteryVolts: 12.6,
		Temperature:  3.5,
		Humidity:     70,
		SampleRate:   200 * time.Microsecond,
	}
}

func TestNewMock_NilConfig(t *testing.T) {
	dev := NewMock(nil, nil, 570, 5.28)
	require.NotNil(t, dev)
	assert.Equal(t, config.Default().Mock, dev.cfg)
	assert.Equal(t, 3.3, dev.adc.ReferenceVoltage)
	assert.False(t, dev.IsConnected())
}

func TestMock_Connect(t *testing.T) {
	dev := NewMock(testMockConfig(), nil, 570, 5.28)

	_, err := dev.ReadVoltage()
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, dev.Connect())
	assert.True(t, dev.IsConnected())

	err = dev.Connect()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already connected")

	require.NoError(t, dev.Close())
	assert.False(t, dev.IsConnected())
	assert.NoError(t, dev.Close())

	_, err = dev.ReadBattery()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestMock_MainsSwing(t *testing.T) {
	dev := NewMock(testMockConfig(), nil, 570, 5.28)
	require.NoError(t, dev.Connect())
	defer dev.Close()

	// 220 V / 570 -> 0.386 V RMS at the pin -> ~677 counts peak.
	peak := 220.0 / 570 * 4095 / 3.3 * 1.4142
	lo, hi := uint16(4095), uint16(0)
	deadline := time.Now().Add(40 * time.Millisecond)
	for time.Now().Before(deadline) {
		v, err := dev.ReadVoltage()
		require.NoError(t, err)
		lo = min(lo, v)
		hi = max(hi, v)
	}

	assert.GreaterOrEqual(t, float64(lo), 2048-peak-1)
	assert.LessOrEqual(t, float64(hi), 2048+peak+1)
	assert.Greater(t, float64(hi-lo), peak, "a full period must show most of the swing")
}

func TestMock_Outage(t *testing.T) {
	dev := NewMock(testMockConfig(), nil, 570, 5.28)
	require.NoError(t, dev.Connect())
	defer dev.Close()

	dev.SetMains(0)
	for i := 0; i < 50; i++ {
		v, err := dev.ReadVoltage()
		require.NoError(t, err)
		assert.Equal(t, uint16(2048), v)
	}
}

func TestMock_Battery(t *testing.T) {
	dev := NewMock(testMockConfig(), nil, 570, 5.28)
	require.NoError(t, dev.Connect())
	defer dev.Close()

	v, err := dev.ReadBattery()
	require.NoError(t, err)
	// 12.6 / 5.28 = 2.386 V -> 2961 counts.
	assert.InDelta(t, 2961, int(v), 1)

	dev.SetBattery(100)
	v, err = dev.ReadBattery()
	require.NoError(t, err)
	assert.Equal(t, uint16(MaxValue), v, "counts clamp at full scale")
}

func TestMock_Environment(t *testing.T) {
	dev := NewMock(testMockConfig(), nil, 570, 5.28)

	a, ok := dev.Ambient()
	assert.True(t, ok)
	assert.InDelta(t, 3.5, a.Temperature, 1e-6)
	assert.InDelta(t, 70, a.Humidity, 1e-6)

	dev.SetAmbient(200, 50)
	_, ok = dev.Ambient()
	assert.False(t, ok)

	assert.False(t, dev.DoorOpen())
	dev.SetDoor(true)
	assert.True(t, dev.DoorOpen())
}

func TestClampCounts(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want uint16
	}{
		{"negative", -1, 0},
		{"zero", 0, 0},
		{"half scale", 2047.5, 2047},
		{"full scale", 4095, 4095},
		{"above full scale", 5000, 4095},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampCounts(tt.in))
		})
	}
}
