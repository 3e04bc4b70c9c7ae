package calibration

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is the persistence contract the control loop depends on.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
	Settings() Settings
	SetVoltageCalibration(factor float64) error
	SetBatteryCalibration(factor float64) error
	SetBatteryMin(volts float64) error
	SetDoorMaxOpen(seconds int) error
	Update(func(*Settings)) (Settings, error)
	UpdateRecords(temp float64) (bool, error)
	ResetRecords(temp float64) error
}

var _ Store = (*FileStore)(nil)

// FileStore keeps Settings in a YAML file. It is safe for concurrent use.
type FileStore struct {
	path string
	log  *slog.Logger

	mu       sync.Mutex
	settings Settings
}

// NewFileStore creates a store backed by path. Call Load before use.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:     path,
		log:      logger.With("component", "calibration"),
		settings: Default(),
	}
}

// Load reads the file and repairs invalid fields. Repaired (or missing)
// settings are written back immediately. Only I/O failures reading an
// existing file are returned; bad content is never an error.
func (s *FileStore) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := Default()
	persist := false

	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		s.log.Info("no calibration file, using defaults", "path", s.path)
		persist = true
	case err != nil:
		return Settings{}, fmt.Errorf("failed to read calibration file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			s.log.Warn("calibration file unreadable, resetting to defaults", "path", s.path, "err", err)
			loaded = Default()
			persist = true
		}
	}

	if fixed := loaded.Repair(); len(fixed) > 0 {
		s.log.Warn("repaired calibration fields", "fields", fixed)
		persist = true
	}

	s.settings = loaded
	if persist {
		if err := s.write(loaded); err != nil {
			s.log.Warn("failed to persist repaired calibration", "err", err)
		}
	}

	return loaded, nil
}

// Save validates and persists a complete settings record.
func (s *FileStore) Save(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(settings); err != nil {
		return err
	}
	s.settings = settings
	return nil
}

// Settings returns a copy of the current settings.
func (s *FileStore) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SetVoltageCalibration updates and persists the mains calibration factor.
func (s *FileStore) SetVoltageCalibration(factor float64) error {
	if !inRange(factor, VoltageCalibrationMin, VoltageCalibrationMax) {
		return &RangeError{"voltage_calibration", factor, VoltageCalibrationMin, VoltageCalibrationMax}
	}
	_, err := s.Update(func(st *Settings) { st.VoltageCalibration = factor })
	return err
}

// SetBatteryCalibration updates and persists the battery calibration factor.
func (s *FileStore) SetBatteryCalibration(factor float64) error {
	if !(factor > 0 && factor <= BatteryCalibrationMax) {
		return &RangeError{"battery_calibration", factor, 0, BatteryCalibrationMax}
	}
	_, err := s.Update(func(st *Settings) { st.BatteryCalibration = factor })
	return err
}

// SetBatteryMin updates and persists the low-battery threshold.
func (s *FileStore) SetBatteryMin(volts float64) error {
	if !inRange(volts, BatteryMinLow, BatteryMinHigh) {
		return &RangeError{"battery_min", volts, BatteryMinLow, BatteryMinHigh}
	}
	_, err := s.Update(func(st *Settings) { st.BatteryMin = volts })
	return err
}

// SetDoorMaxOpen updates and persists the door-open alert delay.
func (s *FileStore) SetDoorMaxOpen(seconds int) error {
	if seconds < DoorMaxOpenLow || seconds > DoorMaxOpenHigh {
		return &RangeError{"door_max_open_seconds", float64(seconds), DoorMaxOpenLow, DoorMaxOpenHigh}
	}
	_, err := s.Update(func(st *Settings) { st.DoorMaxOpenSeconds = seconds })
	return err
}

// Update applies fn to a copy of the settings, validates the result and
// persists it. On error the stored settings are unchanged.
func (s *FileStore) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.settings, err
	}
	if err := s.write(next); err != nil {
		return s.settings, err
	}
	s.settings = next
	return next, nil
}

// UpdateRecords widens the max/min temperature records with temp and persists
// only when one of them moved. Readings outside the plausible sensor range
// are ignored.
func (s *FileStore) UpdateRecords(temp float64) (bool, error) {
	if !(temp > DefaultTempMaxRecord && temp < TemperatureHigh) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if temp > next.TempMaxRecord {
		next.TempMaxRecord = temp
	}
	if temp < next.TempMinRecord {
		next.TempMinRecord = temp
	}
	if next == s.settings {
		return false, nil
	}
	if err := s.write(next); err != nil {
		return false, err
	}
	s.settings = next
	return true, nil
}

// ResetRecords collapses both records onto temp.
func (s *FileStore) ResetRecords(temp float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if temp > DefaultTempMaxRecord && temp < TemperatureHigh {
		next.TempMaxRecord = temp
		next.TempMinRecord = temp
	} else {
		next.TempMaxRecord = DefaultTempMaxRecord
		next.TempMinRecord = DefaultTempMinRecord
	}
	if err := s.write(next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

// write must be called with mu held.
func (s *FileStore) write(settings Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace calibration file: %w", err)
	}
	return nil
}
