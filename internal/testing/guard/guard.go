package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("QUILL_TEST_MODE") == "" {
			_ = os.Setenv("QUILL_TEST_MODE", "1")
		}
	})
}
