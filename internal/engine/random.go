package engine

import (
	"math/rand/v2"
	"time"
)

// Source supplies uniformly distributed random bytes.
type Source interface {
	Byte() byte
}

// Random is the default Source. It is not safe for concurrent use; the
// engine is its only caller.
type Random struct {
	r *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func NewTimeSeededRandom() *Random {
	return NewRandom(uint64(time.Now().UnixNano()))
}

func (r *Random) Byte() byte {
	return byte(r.r.Uint32())
}

// randMax draws a value in [0, n). A single byte covers ranges up to 256,
// wider ranges take two.
func randMax(src Source, n int) int {
	if n <= 0 {
		return 0
	}
	if n <= 256 {
		return int(src.Byte()) % n
	}
	return (int(src.Byte())<<8 | int(src.Byte())) % n
}
