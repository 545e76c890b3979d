package registry

import "errors"

// ErrAlreadyRegistered is returned by Register when tid already has an
// entry.
var ErrAlreadyRegistered = errors.New("registry: thread already registered")

// ErrNotRegistered is returned by Unregister when tid has no entry.
var ErrNotRegistered = errors.New("registry: thread not registered")
