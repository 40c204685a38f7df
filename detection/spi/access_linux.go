//go:build linux

package spi

import "golang.org/x/sys/unix"

func accessible(path string) bool {
	return unix.Access(path, unix.R_OK|unix.W_OK) == nil
}
