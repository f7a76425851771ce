// Package guard switches the process into test mode when imported, so
// entrypoints and packages that check app.InTestMode skip network side effects.
package guard

import (
	"os"
	"sync"
)

// Env is the variable read by app.InTestMode.
const Env = "MARSUKAT_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
