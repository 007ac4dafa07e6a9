package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	initOnce sync.Once
	termOnce sync.Once
	initErr  error
)

// Initialize wraps portaudio.Initialize with sync.Once so the player and the
// device listing can both call it.
func Initialize() error {
	initOnce.Do(func() {
		if err := portaudio.Initialize(); err != nil {
			initErr = fmt.Errorf("portaudio init: %w", err)
		}
	})
	return initErr
}

// Terminate balances a successful Initialize.
func Terminate() {
	if initErr != nil {
		return
	}
	termOnce.Do(func() {
		_ = portaudio.Terminate()
	})
}
