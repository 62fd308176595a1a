//go:build linux || darwin || freebsd || openbsd || netbsd

package main

import (
	"context"
	"os"

	"golang.org/x/sys/unix"
)

// listenForKeyboard switches the console to single-key input and reads
// keys in the background. The returned func puts the console back.
func listenForKeyboard(ctx context.Context, k *keys) (restore func()) {
	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return func() {}
	}

	// Output processing stays on so "\n" still returns the carriage.
	newState := *oldState
	newState.Lflag &^= unix.ICANON | unix.ECHO
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &newState); err != nil {
		return func() {}
	}

	go readKeys(ctx, os.Stdin, k)
	return func() { unix.IoctlSetTermios(fd, ioctlSetTermios, oldState) }
}
