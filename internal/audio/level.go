package audio

import (
	"math"
	"sync/atomic"
)

const (
	MinLevelDB = -127.0
	MaxLevelDB = 0.0
)

// LevelMeter tracks the RMS level of the most recent PCM frame in dBFS. The
// zero value reads MinLevelDB until the first frame is observed.
type LevelMeter struct {
	bits     atomic.Uint64
	observed atomic.Bool
}

func (m *LevelMeter) Observe(pcm []int16) float64 {
	db := LevelDB(pcm)
	m.bits.Store(math.Float64bits(db))
	m.observed.Store(true)
	return db
}

func (m *LevelMeter) Level() float64 {
	if m == nil || !m.observed.Load() {
		return MinLevelDB
	}
	return math.Float64frombits(m.bits.Load())
}

// LevelDB is the RMS level of pcm relative to full scale, clamped to
// [MinLevelDB, MaxLevelDB].
func LevelDB(pcm []int16) float64 {
	if len(pcm) == 0 {
		return MinLevelDB
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s) / 32768
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(pcm)))
	if rms == 0 {
		return MinLevelDB
	}
	return math.Max(MinLevelDB, math.Min(MaxLevelDB, 20*math.Log10(rms)))
}
