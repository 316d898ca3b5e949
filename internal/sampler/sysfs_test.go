package sampler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAttr(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func waitSample(t *testing.T, ch <-chan Sample) Sample {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for sample")
		return Sample{}
	}
}

func TestSysfsReadings(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		kind  Kind
		cfg   SysfsConfig
		value float64
		raw   int64
	}{
		{
			name:  "temperature millidegrees",
			kind:  KindTemperature,
			cfg:   SysfsConfig{TempPath: writeAttr(t, dir, "temp", "42500\n")},
			value: 42.5,
			raw:   42500,
		},
		{
			name:  "negative temperature",
			kind:  KindTemperature,
			cfg:   SysfsConfig{TempPath: writeAttr(t, dir, "cold", "-1500\n")},
			value: -1.5,
			raw:   -1500,
		},
		{
			name:  "scaled adc",
			kind:  KindAnalog,
			cfg:   SysfsConfig{ADCPath: writeAttr(t, dir, "adc", "1234\n"), ADCScale: 0.5},
			value: 617,
			raw:   1234,
		},
		{
			name:  "unscaled adc",
			kind:  KindAnalog,
			cfg:   SysfsConfig{ADCPath: writeAttr(t, dir, "adc2", "800")},
			value: 800,
			raw:   800,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan Sample, 1)
			s := NewSysfs(tt.cfg, func(sm Sample) { ch <- sm })

			if err := s.Request(tt.kind); err != nil {
				t.Fatalf("Request: %v", err)
			}
			got := waitSample(t, ch)
			if got.Err != nil {
				t.Fatalf("sample error: %v", got.Err)
			}
			if got.Kind != tt.kind || got.Value != tt.value || got.Raw != tt.raw {
				t.Errorf("got %+v, want value %v raw %d", got, tt.value, tt.raw)
			}
			if got.Unit != tt.kind.Unit() {
				t.Errorf("Unit: got %q, want %q", got.Unit, tt.kind.Unit())
			}
		})
	}
}

func TestSysfsUnsupportedKind(t *testing.T) {
	s := NewSysfs(SysfsConfig{}, nil)
	for _, kind := range []Kind{KindTemperature, KindAnalog, Kind(9)} {
		if err := s.Request(kind); !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s: expected ErrUnsupported, got %v", kind, err)
		}
	}
}

func TestSysfsBusyWhileInFlight(t *testing.T) {
	dir := t.TempDir()
	ch := make(chan Sample, 2)
	s := NewSysfs(SysfsConfig{
		TempPath: writeAttr(t, dir, "temp", "21000"),
		ADCPath:  writeAttr(t, dir, "adc", "5"),
	}, func(sm Sample) { ch <- sm })

	release := make(chan struct{})
	s.now = func() time.Time {
		<-release
		return time.Unix(0, 0)
	}

	if err := s.Request(KindTemperature); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := s.Request(KindTemperature); !errors.Is(err, ErrBusy) {
		t.Errorf("second request: expected ErrBusy, got %v", err)
	}
	// Kinds are independent.
	if err := s.Request(KindAnalog); err != nil {
		t.Errorf("analog request: %v", err)
	}

	close(release)
	waitSample(t, ch)
	waitSample(t, ch)
	s.Wait()

	if err := s.Request(KindTemperature); err != nil {
		t.Errorf("request after completion: %v", err)
	}
	waitSample(t, ch)
}

func TestSysfsReadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing")},
		{"not a number", writeAttr(t, dir, "junk", "hot\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan Sample, 1)
			s := NewSysfs(SysfsConfig{TempPath: tt.path}, func(sm Sample) { ch <- sm })
			if err := s.Request(KindTemperature); err != nil {
				t.Fatalf("Request: %v", err)
			}
			if got := waitSample(t, ch); got.Err == nil {
				t.Errorf("expected sample error, got %+v", got)
			}
			if err := s.Check(); err == nil {
				t.Error("Check: expected error")
			}
		})
	}
}

func TestFakeCompletesOnce(t *testing.T) {
	var got []Sample
	f := NewFake(func(s Sample) { got = append(got, s) })

	if err := f.Request(KindAnalog); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := f.Request(KindAnalog); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if !f.Complete(KindAnalog, 1650) {
		t.Fatal("Complete returned false")
	}
	if f.Complete(KindAnalog, 1) {
		t.Error("second Complete should return false")
	}
	if len(got) != 1 || got[0].Value != 1650 || got[0].Unit != "mV" {
		t.Errorf("unexpected samples: %+v", got)
	}
}
