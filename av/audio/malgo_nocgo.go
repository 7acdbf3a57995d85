//go:build !cgo

package audio

import "fmt"

// OpenMalgo needs cgo; without it only the null device is available.
func OpenMalgo(cfg Config) (*Device, error) {
	return nil, fmt.Errorf("%w: built without cgo", ErrNoDevice)
}
