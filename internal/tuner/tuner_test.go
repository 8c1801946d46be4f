package tuner

import (
	"runtime"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTuneExplicitDevice(t *testing.T) {
	s := Tune(DeviceCUDA, 4, nil, nil)
	if s.Device != DeviceCUDA {
		t.Errorf("Device = %s", s.Device)
	}
	// GPU devices are never thread-tuned.
	if s.IntraOpThreads != 0 || s.InterOpThreads != 0 {
		t.Errorf("GPU settings should be untouched: %+v", s)
	}
}

func TestTuneAutoDetect(t *testing.T) {
	s := Tune("", 0, func() bool { return true }, nil)
	if s.Device != DeviceCUDA {
		t.Errorf("Device = %s, want cuda", s.Device)
	}
	s = Tune("", 0, func() bool { return false }, nil)
	if s.Device != DeviceCPU {
		t.Errorf("Device = %s, want cpu", s.Device)
	}
}

func TestTuneUnknownReplicas(t *testing.T) {
	s := Tune(DeviceCPU, 0, nil, nil)
	if s.IntraOpThreads != 0 || s.InterOpThreads != 0 {
		t.Errorf("unknown replicas should leave threads untuned: %+v", s)
	}
}

func TestTuneDividesThreads(t *testing.T) {
	s := Tune(DeviceCPU, 2, nil, nil)
	want := runtime.NumCPU() / 2
	if want < 1 {
		want = 1
	}
	if s.IntraOpThreads != want {
		t.Errorf("IntraOpThreads = %d, want %d", s.IntraOpThreads, want)
	}
	if s.InterOpThreads != 1 {
		t.Errorf("InterOpThreads = %d, want 1", s.InterOpThreads)
	}
}

func TestTuneWarnsWhenUndersized(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	// More replicas than cores forces the per-replica share to 1.
	s := Tune(DeviceCPU, runtime.NumCPU()*2, nil, logger)
	if s.IntraOpThreads != 1 {
		t.Errorf("IntraOpThreads = %d, want 1", s.IntraOpThreads)
	}
	if logs.Len() != 1 {
		t.Fatalf("want exactly one warning, got %d", logs.Len())
	}

	// A comfortable share emits no warning.
	logsBefore := logs.Len()
	Tune(DeviceCPU, 1, nil, logger)
	if runtime.NumCPU() >= 2 && logs.Len() != logsBefore {
		t.Error("well-sized configuration should not warn")
	}
}
