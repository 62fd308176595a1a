//go:build !(linux || darwin || freebsd || openbsd || netbsd || windows)

package main

import (
	"context"
	"os"
)

// listenForKeyboard reads line-buffered keys; the console mode is left alone.
func listenForKeyboard(ctx context.Context, k *keys) (restore func()) {
	go readKeys(ctx, os.Stdin, k)
	return func() {}
}
