package grammar

import (
	"math/rand"
	"sync"
	"time"
)

// fallbackMu guards fallbackSrc, the package-level entropy source used to
// seed a Generate call's RNG when the caller supplies none via GenOpt. Each
// call still gets its own unshared *rand.Rand; only the act of drawing a
// seed from the shared source is serialized.
var (
	fallbackMu  sync.Mutex
	fallbackSrc = rand.NewSource(time.Now().UnixNano())
)

// defaultRand returns a fresh, unshared random source for one Generate
// call. Safe to call concurrently from multiple goroutines.
func defaultRand() *rand.Rand {
	fallbackMu.Lock()
	seed := rand.New(fallbackSrc).Int63()
	fallbackMu.Unlock()
	return rand.New(rand.NewSource(seed))
}
