//go:build !linux

package serial

import "errors"

const nativeSupported = false

// OpenNative is only implemented on Linux; use BackendBugst elsewhere.
func OpenNative(cfg Config) (Transport, error) {
	return nil, errors.New("native backend requires linux")
}
