package server

import (
	"sync/atomic"

	"github.com/J1407B-K/halt/fault"
)

// faultCounters is indexed by fault.Kind the same way the response table is.
type faultCounters [fault.Count + 1]atomic.Uint64

func (f *faultCounters) inc(k fault.Kind) {
	if k.Valid() {
		f[k].Add(1)
	}
}

// Stats is a point-in-time snapshot of server counters.
type Stats struct {
	Requests uint64
	Faults   map[fault.Kind]uint64
}

func (f *faultCounters) snapshot() map[fault.Kind]uint64 {
	out := make(map[fault.Kind]uint64, fault.Count)
	for _, k := range fault.All() {
		out[k] = f[k].Load()
	}
	return out
}
