// Package rms estimates true RMS mains voltage and battery voltage from raw
// ADC samples.
//
// Each cycle reads the mains pin as fast as the source allows for a fixed
// window, folding samples into RunningStats. The window standard deviation is
// the AC RMS independent of the front-end DC bias. A noise gate reports an
// outage as exactly zero within one cycle; otherwise the calibrated value is
// smoothed with an exponential moving average. The battery pin is averaged
// over a handful of samples after the mains window.
package rms

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/itohio/coldmon/pkg/adc"
	"github.com/itohio/coldmon/pkg/config"
	"github.com/itohio/coldmon/pkg/reading"
)

// Params are the fixed estimator parameters.
type Params struct {
	Window           time.Duration
	Period           time.Duration
	Alpha            float64
	NoiseFloorADC    float64
	SnapVolts        float64
	ReferenceVoltage float64
	FullScale        float64
	BatterySamples   int
	BatterySpacing   time.Duration
}

// ParamsFromConfig builds Params from the application configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		Window:           cfg.Estimator.Window,
		Period:           cfg.Estimator.Period,
		Alpha:            cfg.Estimator.Alpha,
		NoiseFloorADC:    cfg.Estimator.NoiseFloorADC,
		SnapVolts:        cfg.Estimator.SnapVolts,
		ReferenceVoltage: cfg.ADC.ReferenceVoltage,
		FullScale:        cfg.ADC.FullScale,
		BatterySamples:   cfg.Estimator.BatterySamples,
		BatterySpacing:   cfg.Estimator.BatterySpacing,
	}
}

// Calibration holds the runtime-adjustable factors.
type Calibration struct {
	Voltage float64 // Volts per ADC-pin volt on the mains channel
	Battery float64 // Volts per ADC-pin volt on the battery channel
	Outage  float64 // Smoothed mains below this is published as 0
}

// Estimator is the acquisition worker. Run and Measure must not be called
// concurrently; the setters are safe from any goroutine.
type Estimator struct {
	src    adc.Source
	shared *reading.Shared
	p      Params
	log    *slog.Logger

	voltageCal atomicFloat
	batteryCal atomicFloat
	outage     atomicFloat

	// Owned by the worker.
	stats    RunningStats
	voltsRaw float64
	battery  float64
}

// New creates an estimator reading from src and publishing to shared.
func New(src adc.Source, shared *reading.Shared, p Params, cal Calibration, logger *slog.Logger) *Estimator {
	def := ParamsFromConfig(config.Default())
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.Period <= 0 {
		p.Period = def.Period
	}
	if p.Alpha <= 0 || p.Alpha > 1 {
		p.Alpha = def.Alpha
	}
	if p.ReferenceVoltage <= 0 {
		p.ReferenceVoltage = def.ReferenceVoltage
	}
	if p.FullScale <= 0 {
		p.FullScale = def.FullScale
	}
	if p.BatterySamples <= 0 {
		p.BatterySamples = def.BatterySamples
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Estimator{
		src:    src,
		shared: shared,
		p:      p,
		log:    logger.With("component", "rms"),
	}
	e.voltageCal.Store(cal.Voltage)
	e.batteryCal.Store(cal.Battery)
	e.outage.Store(cal.Outage)
	return e
}

// SetVoltageCalibration changes the mains factor from the next cycle on.
func (e *Estimator) SetVoltageCalibration(factor float64) { e.voltageCal.Store(factor) }

// SetBatteryCalibration changes the battery factor from the next cycle on.
func (e *Estimator) SetBatteryCalibration(factor float64) { e.batteryCal.Store(factor) }

// SetOutageThreshold changes the display clamp from the next cycle on.
func (e *Estimator) SetOutageThreshold(volts float64) { e.outage.Store(volts) }

// Calibration returns the factors currently in effect.
func (e *Estimator) Calibration() Calibration {
	return Calibration{
		Voltage: e.voltageCal.Load(),
		Battery: e.batteryCal.Load(),
		Outage:  e.outage.Load(),
	}
}

// Run measures on a fixed cadence until ctx is cancelled. The worker stays
// on one OS thread so the sampling burst is not interleaved with I/O.
func (e *Estimator) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.log.Info("estimator started", "window", e.p.Window, "period", e.p.Period)
	defer e.log.Info("estimator stopped")

	timer := time.NewTimer(e.p.Period)
	defer timer.Stop()

	next := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}

		e.Measure(ctx)

		next = next.Add(e.p.Period)
		wait := time.Until(next)
		if wait <= 0 {
			// Overran the period: start the next cycle now instead of bursting.
			next = time.Now()
			continue
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// Measure runs one full cycle, publishes the result and returns it.
func (e *Estimator) Measure(ctx context.Context) reading.Reading {
	start := time.Now()
	errs := e.sampleMains(ctx, start.Add(e.p.Window))
	rmsADC := e.stats.StdDev()
	count := e.stats.Count()

	raw, display := e.update(rmsADC)
	e.measureBattery(ctx)

	r := reading.Reading{
		Volts:      display,
		VoltsRaw:   raw,
		RMSADC:     rmsADC,
		Samples:    count,
		ReadErrors: errs,
		Battery:    e.battery,
		At:         start,
	}
	if e.shared != nil {
		e.shared.Publish(r)
	}

	if errs > 0 {
		e.log.Warn("mains read errors", "errors", errs, "samples", count)
	}
	e.log.Debug("cycle",
		"rms_adc", rmsADC,
		"samples", count,
		"volts_raw", raw,
		"volts", display,
		"battery", e.battery,
		"took", time.Since(start),
	)

	return r
}

// sampleMains fills e.stats until deadline and returns the read error count.
func (e *Estimator) sampleMains(ctx context.Context, deadline time.Time) int {
	e.stats.Reset()
	errs := 0
	for time.Now().Before(deadline) {
		v, err := e.src.ReadVoltage()
		if err != nil {
			errs++
			if errors.Is(err, adc.ErrNotConnected) {
				break
			}
			continue
		}
		e.stats.Add(float64(v))

		// Cheap check; cancellation only needs to land within one window.
		if e.stats.Count()&0xff == 0 && ctx.Err() != nil {
			break
		}
	}
	return errs
}

// update applies the noise gate, calibration and smoothing to one window's
// RMS and returns the smoothed value and the outage-clamped value.
func (e *Estimator) update(rmsADC float64) (raw, display float64) {
	if rmsADC < e.p.NoiseFloorADC || math.IsNaN(rmsADC) {
		e.voltsRaw = 0
		return 0, 0
	}

	candidate := e.countsToPinVolts(rmsADC) * e.voltageCal.Load()
	if e.voltsRaw < e.p.SnapVolts {
		e.voltsRaw = candidate
	} else {
		e.voltsRaw = e.p.Alpha*candidate + (1-e.p.Alpha)*e.voltsRaw
	}

	display = e.voltsRaw
	if display < e.outage.Load() {
		display = 0
	}
	return e.voltsRaw, display
}

// measureBattery averages BatterySamples battery reads. If every read fails
// the previous value is kept.
func (e *Estimator) measureBattery(ctx context.Context) {
	var sum float64
	n := 0
	for i := 0; i < e.p.BatterySamples; i++ {
		if i > 0 && e.p.BatterySpacing > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.p.BatterySpacing):
			}
		}
		v, err := e.src.ReadBattery()
		if err != nil {
			continue
		}
		sum += float64(v)
		n++
	}
	if n == 0 {
		e.log.Debug("no battery samples this cycle")
		return
	}
	e.battery = e.countsToPinVolts(sum/float64(n)) * e.batteryCal.Load()
}

func (e *Estimator) countsToPinVolts(counts float64) float64 {
	return counts * (e.p.ReferenceVoltage / e.p.FullScale)
}

// atomicFloat is a float64 with atomic load/store.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
