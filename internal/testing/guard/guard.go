package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("MCM_TEST_MODE") == "" {
			_ = os.Setenv("MCM_TEST_MODE", "1")
		}
	})
}
