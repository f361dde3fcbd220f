// Package constants defines magic numbers and default values used throughout httpwire.
package constants

import "time"

// Connection and deadline defaults.
const (
	DefaultConnTimeout = 60 * time.Second
	DefaultReadTimeout = 60 * time.Second
	DefaultDeadline    = time.Hour
)

// HTTP limits
const (
	MaxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB
)

// Buffer limits
const (
	DefaultBodyMemLimit = 4 * 1024 * 1024   // 4MB
	MaxRawBufferSize    = 100 * 1024 * 1024 // 100MB cap for raw buffer
)
