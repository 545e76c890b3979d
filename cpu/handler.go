package cpu

import (
	"github.com/joeycumines/go-profcore/internal/clock"
	"github.com/joeycumines/go-profcore/internal/frame"
)

// fireHandler is bound as a clock.Fire callback for every registered
// thread. It must stay
// allocation-free and lock-free on the hot path: the only things it
// touches are the fastState load, a caller-supplied ThreadStateProvider,
// the stateless Walker, and a lock-free ring push.
func (p *Profiler) fireHandler(tid uint64) {
	if p.state.Load() != stateRunning {
		return
	}
	if p.guard.ForkedSinceSnapshot() {
		return
	}

	var raw frame.RawSample
	raw.TimestampNS = clock.NowNS()
	raw.TID = tid

	ts := p.stateProvider(tid)
	depth, reason := p.walker.Capture(ts, &raw)
	if reason != dropNone {
		p.stats.samplesDroppedValidation.Add(1)
		invokeChain(p.chained, tid)
		return
	}
	_ = depth

	if !p.ring.Push(&raw) {
		// ring.Ring already counts the drop internally (Dropped()); no
		// separate counter needed here.
	} else {
		p.stats.samplesCaptured.Add(1)
	}

	invokeChain(p.chained, tid)
}

// dropNone mirrors internal/frame's unexported zero-value drop reason
// (dropNone) so this package can compare Capture's result without frame
// exporting its dropReason type.
const dropNone = 0
