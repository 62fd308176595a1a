//go:build windows

package main

import (
	"context"
	"os"

	"golang.org/x/term"
)

// listenForKeyboard switches the console to raw input and reads keys in
// the background. The returned func puts the console back.
func listenForKeyboard(ctx context.Context, k *keys) (restore func()) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	go readKeys(ctx, os.Stdin, k)
	if err != nil {
		// Line-buffered input still works, one key per Enter.
		return func() {}
	}
	return func() { term.Restore(fd, oldState) }
}
