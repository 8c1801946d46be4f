// Package tuner sizes compute threads and selects the inference device.
package tuner

import (
	"runtime"

	"go.uber.org/zap"
)

// Supported device identifiers.
const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Settings is the one-time runtime configuration applied to the numeric
// backend at model construction. Zero thread counts leave the backend's
// defaults untouched.
type Settings struct {
	Device         string
	IntraOpThreads int
	InterOpThreads int
}

// Tune selects the device and, on CPU with a known replica count, divides
// the machine's threads across replicas so co-located replicas do not
// oversubscribe cores. When the share drops below 2 threads a non-fatal
// warning recommends fewer replicas or more threads. GPU devices and
// unknown replica counts are left untuned.
func Tune(device string, replicas int, cudaAvailable func() bool, logger *zap.Logger) Settings {
	if device == "" {
		if cudaAvailable != nil && cudaAvailable() {
			device = DeviceCUDA
		} else {
			device = DeviceCPU
		}
	}
	s := Settings{Device: device}
	if device != DeviceCPU || replicas <= 0 {
		return s
	}

	perReplica := runtime.NumCPU() / replicas
	if perReplica < 1 {
		perReplica = 1
	}
	if perReplica < 2 && logger != nil {
		logger.Warn("too many replicas for available threads; expect sub-optimal performance",
			zap.Int("replicas", replicas),
			zap.Int("threads_per_replica", perReplica),
			zap.Int("total_threads", runtime.NumCPU()),
		)
	}
	s.IntraOpThreads = perReplica
	// One inter-op thread per replica keeps co-located replicas from
	// oversubscribing the machine.
	s.InterOpThreads = 1
	return s
}
