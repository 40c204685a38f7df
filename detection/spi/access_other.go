//go:build !linux

package spi

// accessible is a stub for non-Linux platforms
func accessible(string) bool {
	return false
}
