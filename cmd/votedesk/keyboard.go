package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode"

	"golang.org/x/term"

	"github.com/abrezinsky/votedesk/internal/logger"
)

const ctrlC = 0x03

// keys dispatches single-key shortcuts typed at the console
type keys struct {
	out     io.Writer
	log     *logger.SlogLogger
	url     string
	open    func(url string) error
	signOut func(ctx context.Context) (string, error)
	quit    func()
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// handle runs the action bound to b and reports whether the listener
// should stop.
func (k *keys) handle(ctx context.Context, b byte) bool {
	if b == ctrlC {
		k.quit()
		return true
	}

	switch unicode.ToLower(rune(b)) {
	case 'o':
		fmt.Fprintf(k.out, "%sOpening %s in browser...%s\n", cyan, k.url, reset)
		if err := k.open(k.url); err != nil {
			fmt.Fprintf(k.out, "%sError opening browser: %v%s\n", red, err, reset)
		}
	case 'h':
		if k.log.IsHTTPLoggingEnabled() {
			k.log.DisableHTTPLogging()
			fmt.Fprintf(k.out, "%sHTTP logging disabled%s\n", yellow, reset)
		} else {
			k.log.EnableHTTPLogging()
			fmt.Fprintf(k.out, "%sHTTP logging enabled%s\n", green, reset)
		}
	case 'l':
		k.cycleLogLevel()
	case 'x':
		email, err := k.signOut(ctx)
		switch {
		case err != nil:
			fmt.Fprintf(k.out, "%sSign out failed: %v%s\n", red, err, reset)
		case email == "":
			fmt.Fprintf(k.out, "%sNobody is signed in%s\n", yellow, reset)
		default:
			fmt.Fprintf(k.out, "%sSigned out %s%s\n", green, email, reset)
		}
	case 'q':
		k.quit()
		return true
	case '?':
		k.printHelp()
	}
	return false
}

// cycleLogLevel cycles through debug -> info -> warn -> error
func (k *keys) cycleLogLevel() {
	var next string
	switch k.log.GetLevel() {
	case slog.LevelDebug:
		next = "info"
	case slog.LevelInfo:
		next = "warn"
	case slog.LevelWarn:
		next = "error"
	default:
		next = "debug"
	}

	k.log.SetLevel(logger.ParseLevel(next))
	fmt.Fprintf(k.out, "%sLog level: %s%s%s\n", green, yellow, next, reset)
}

// printHelp displays all available keyboard shortcuts
func (k *keys) printHelp() {
	fmt.Fprintf(k.out, "\n%s%s  Keyboard Shortcuts:%s\n", bold, green, reset)
	fmt.Fprintf(k.out, "    %so%s      - Open VoteDesk in browser\n", cyan, reset)
	fmt.Fprintf(k.out, "    %sh%s      - Toggle HTTP request logging\n", cyan, reset)
	fmt.Fprintf(k.out, "    %sl%s      - Cycle log level (debug → info → warn → error)\n", cyan, reset)
	fmt.Fprintf(k.out, "    %sx%s      - Sign out\n", cyan, reset)
	fmt.Fprintf(k.out, "    %sq%s      - Quit server\n", cyan, reset)
	fmt.Fprintf(k.out, "    %s?%s      - Show this help\n\n", cyan, reset)
}

// readKeys feeds bytes from r to k until r fails, ctx ends or a key asks
// to stop.
func readKeys(ctx context.Context, r io.Reader, k *keys) {
	buf := make([]byte, 1)
	for ctx.Err() == nil {
		n, err := r.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		if k.handle(ctx, buf[0]) {
			return
		}
	}
}
