package heap

import "errors"

var (
	ErrAlreadyInitialized = errors.New("heap: already initialized")
	ErrNotInitialized     = errors.New("heap: not initialized")
	ErrAlreadyRunning     = errors.New("heap: already running")
	ErrNotRunning         = errors.New("heap: not running")
	ErrShutdown           = errors.New("heap: sampler has been shut down")
	ErrInterposerFailed   = errors.New("heap: interposer bootstrap failed")
)
