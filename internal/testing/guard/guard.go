// Package guard forces test mode for any package that imports it.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FEEDMOD_TEST_MODE") == "" {
			_ = os.Setenv("FEEDMOD_TEST_MODE", "1")
		}
	})
}
