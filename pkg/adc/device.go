package adc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate leaves headroom for ~2 kHz mains sampling.
	DefaultBaudRate = 921600
	// DefaultBufferSize is the default number of buffered mains samples.
	DefaultBufferSize = 1024
	// DefaultReadTimeout bounds a single ReadVoltage call.
	DefaultReadTimeout = 50 * time.Millisecond
)

// Kind identifies a bridge record.
type Kind byte

const (
	KindMains   Kind = 'M'
	KindBattery Kind = 'B'
	KindDoor    Kind = 'D'
	KindAmbient Kind = 'A'
)

// Record is one parsed line from the bridge MCU.
type Record struct {
	Kind    Kind
	Value   uint16  // KindMains, KindBattery
	Door    bool    // KindDoor
	Ambient Ambient // KindAmbient
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial reads samples from the ADC bridge MCU over a serial port.
type Serial struct {
	port        string
	baudRate    int
	bufSize     int
	readTimeout time.Duration
	log         *slog.Logger

	conn      serial.Port
	mains     chan uint16
	battery   atomic.Int32 // -1 until the first battery record
	door      atomic.Bool
	ambient   atomic.Pointer[Ambient]
	dropped   atomic.Uint64
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial bridge with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int, readTimeout time.Duration, logger *slog.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Serial{
		port:        port,
		baudRate:    baudRate,
		bufSize:     bufSize,
		readTimeout: readTimeout,
		log:         logger.With("component", "adc", "port", port),
		mains:       make(chan uint16, bufSize),
	}
	d.battery.Store(-1)
	return d
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}

	return result, nil
}

// Connect opens the serial port and starts reading records.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.conn = port
	d.connected = true

	go d.readRecords(d.ctx, port)

	return nil
}

// Close closes the connection and stops reading records.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.log.Warn("error closing serial port", "err", err)
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// ReadVoltage returns the next buffered mains sample, waiting at most the
// read timeout. It must be called from a single goroutine.
func (d *Serial) ReadVoltage() (uint16, error) {
	select {
	case v := <-d.mains:
		return v, nil
	default:
	}

	if !d.IsConnected() {
		return 0, ErrNotConnected
	}

	t := time.NewTimer(d.readTimeout)
	defer t.Stop()

	select {
	case v := <-d.mains:
		return v, nil
	case <-t.C:
		return 0, ErrTimeout
	}
}

// ReadBattery returns the most recent battery sample.
func (d *Serial) ReadBattery() (uint16, error) {
	if !d.IsConnected() {
		return 0, ErrNotConnected
	}
	v := d.battery.Load()
	if v < 0 {
		return 0, ErrNoData
	}
	return uint16(v), nil
}

// Ambient returns the most recent temperature/humidity record.
func (d *Serial) Ambient() (Ambient, bool) {
	a := d.ambient.Load()
	if a == nil {
		return Ambient{}, false
	}
	return *a, a.Valid()
}

// DoorOpen returns the last reported door switch state.
func (d *Serial) DoorOpen() bool {
	return d.door.Load()
}

// Dropped returns how many mains samples were discarded because the buffer was full.
func (d *Serial) Dropped() uint64 {
	return d.dropped.Load()
}

// readRecords reads lines from the serial port and dispatches parsed records.
func (d *Serial) readRecords(ctx context.Context, r io.Reader) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("panic in readRecords", "panic", rec)
		}
	}()

	scanner := bufio.NewScanner(r)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			d.lost(ctx, err)
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			d.log.Debug("failed to parse line", "line", line, "err", err)
			continue
		}
		d.dispatch(rec)
	}
}

// lost marks the bridge disconnected after its record stream ended without
// Close. Cached channel values are dropped so they are not served as live.
func (d *Serial) lost(ctx context.Context, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Close got here first.
	if ctx.Err() != nil {
		return
	}
	d.log.Error("serial stream ended", "err", err)

	if d.cancel != nil {
		d.cancel()
	}
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			d.log.Debug("error closing serial port", "err", err)
		}
		d.conn = nil
	}
	d.connected = false

	d.battery.Store(-1)
	d.door.Store(false)
	d.ambient.Store(nil)
	for {
		select {
		case <-d.mains:
		default:
			return
		}
	}
}

func (d *Serial) dispatch(rec Record) {
	switch rec.Kind {
	case KindMains:
		select {
		case d.mains <- rec.Value:
		default:
			// Buffer full: drop the oldest so the estimator sees fresh samples.
			select {
			case <-d.mains:
			default:
			}
			select {
			case d.mains <- rec.Value:
			default:
			}
			d.dropped.Add(1)
		}
	case KindBattery:
		d.battery.Store(int32(rec.Value))
	case KindDoor:
		d.door.Store(rec.Door)
	case KindAmbient:
		a := rec.Ambient
		a.At = time.Now()
		d.ambient.Store(&a)
	}
}

// parseLine parses a line from the bridge MCU into a Record.
// Formats:
//
//	M,<adc>                    mains sample
//	B,<adc>                    battery sample
//	D,<0|1>                    door switch (1 = open)
//	A,<centi-°C>,<centi-%RH>   ambient
func parseLine(line string) (Record, error) {
	parts := strings.Split(line, ",")
	if len(parts[0]) != 1 {
		return Record{}, fmt.Errorf("invalid record kind %q", parts[0])
	}

	kind := Kind(parts[0][0])
	switch kind {
	case KindMains, KindBattery:
		if len(parts) != 2 {
			return Record{}, fmt.Errorf("invalid line format: expected 2 fields, got %d", len(parts))
		}
		v, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return Record{}, fmt.Errorf("invalid sample: %w", err)
		}
		if v > MaxValue {
			return Record{}, fmt.Errorf("sample out of range: %d (max %d)", v, MaxValue)
		}
		return Record{Kind: kind, Value: uint16(v)}, nil

	case KindDoor:
		if len(parts) != 2 || (parts[1] != "0" && parts[1] != "1") {
			return Record{}, fmt.Errorf("invalid door record %q", line)
		}
		return Record{Kind: kind, Door: parts[1] == "1"}, nil

	case KindAmbient:
		if len(parts) != 3 {
			return Record{}, fmt.Errorf("invalid line format: expected 3 fields, got %d", len(parts))
		}
		t, err := strconv.ParseInt(parts[1], 10, 32)
		if err != nil {
			return Record{}, fmt.Errorf("invalid temperature: %w", err)
		}
		h, err := strconv.ParseInt(parts[2], 10, 32)
		if err != nil {
			return Record{}, fmt.Errorf("invalid humidity: %w", err)
		}
		return Record{Kind: kind, Ambient: Ambient{
			Temperature: float32(t) / 100,
			Humidity:    float32(h) / 100,
		}}, nil
	}

	return Record{}, fmt.Errorf("unknown record kind %q", parts[0])
}
