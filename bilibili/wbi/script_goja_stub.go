//go:build !goja

package wbi

import "errors"

// GojaMixer is a stub when the 'goja' build tag is not enabled.
type GojaMixer struct{}

// NewGojaMixer returns nil to indicate the goja engine is unavailable in this build.
func NewGojaMixer(path string) (*GojaMixer, error) { return nil, nil }

func (m *GojaMixer) Mix(orig string) (string, error) {
	return "", errors.New("goja engine not compiled in")
}
