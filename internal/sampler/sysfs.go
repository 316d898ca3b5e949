package sampler

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Default sysfs sources.
const (
	DefaultTempPath = "/sys/class/thermal/thermal_zone0/temp"
	DefaultADCPath  = "/sys/bus/iio/devices/iio:device0/in_voltage0_raw"
)

// SysfsConfig locates the sysfs attributes to read. An empty path disables
// that kind.
type SysfsConfig struct {
	TempPath string
	ADCPath  string
	// ADCScale converts raw ADC counts to millivolts, as published in
	// the IIO device's in_voltage_scale attribute.
	ADCScale float64
}

// Sysfs reads samples from Linux sysfs attributes on a goroutine per request.
type Sysfs struct {
	cfg  SysfsConfig
	done DoneFunc
	now  func() time.Time

	mu   sync.Mutex
	busy map[Kind]bool
	wg   sync.WaitGroup
}

// NewSysfs creates a sysfs sampler that reports to done.
func NewSysfs(cfg SysfsConfig, done DoneFunc) *Sysfs {
	if cfg.ADCScale <= 0 {
		cfg.ADCScale = 1
	}
	return &Sysfs{
		cfg:  cfg,
		done: done,
		now:  time.Now,
		busy: make(map[Kind]bool),
	}
}

// Request starts a reading of kind. It returns ErrBusy while an earlier
// request of the same kind has not completed.
func (s *Sysfs) Request(kind Kind) error {
	path, err := s.path(kind)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.busy[kind] {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBusy, kind)
	}
	s.busy[kind] = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		sample := s.read(kind, path)

		s.mu.Lock()
		s.busy[kind] = false
		s.mu.Unlock()

		if s.done != nil {
			s.done(sample)
		}
	}()
	return nil
}

// Wait blocks until all in-flight requests have completed.
func (s *Sysfs) Wait() {
	s.wg.Wait()
}

func (s *Sysfs) path(kind Kind) (string, error) {
	var path string
	switch kind {
	case KindTemperature:
		path = s.cfg.TempPath
	case KindAnalog:
		path = s.cfg.ADCPath
	}
	if path == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	return path, nil
}

func (s *Sysfs) read(kind Kind, path string) Sample {
	sample := Sample{Kind: kind, Unit: kind.Unit()}
	raw, err := readInt(path)
	sample.Time = s.now()
	if err != nil {
		sample.Err = err
		return sample
	}
	sample.Raw = raw

	switch kind {
	case KindTemperature:
		// thermal zones report millidegrees
		sample.Value = float64(raw) / 1000
	case KindAnalog:
		sample.Value = float64(raw) * s.cfg.ADCScale
	}
	return sample
}

func readInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	var v int64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &v); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// Check verifies that every configured source is readable.
func (s *Sysfs) Check() error {
	for _, kind := range []Kind{KindTemperature, KindAnalog} {
		path, err := s.path(kind)
		if err != nil {
			continue
		}
		if _, err := readInt(path); err != nil {
			return err
		}
	}
	return nil
}
