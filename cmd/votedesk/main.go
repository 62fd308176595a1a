package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/abrezinsky/votedesk/internal/app"
	"github.com/abrezinsky/votedesk/internal/browser"
	"github.com/abrezinsky/votedesk/internal/config"
	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/pkg/votingapi"
	"github.com/abrezinsky/votedesk/web"
)

// ANSI escape codes
const (
	clearLine = "\033[2K"
	moveUp    = "\033[%dA"
	reset     = "\033[0m"
	yellow    = "\033[33m"
	red       = "\033[31m"
	green     = "\033[32m"
	cyan      = "\033[36m"
	bold      = "\033[1m"
)

var (
	version = "dev"
)

const bannerWidth = 62

var logo = []string{
	"   __     __    _       ____            _     ",
	"   \\ \\   / /__ | |_ ___|  _ \\  ___  ___| | __ ",
	"    \\ \\ / / _ \\| __/ _ \\ | | |/ _ \\/ __| |/ / ",
	"     \\ V / (_) | ||  __/ |_| |  __/\\__ \\   <  ",
	"      \\_/ \\___/ \\__\\___|____/ \\___||___/_|\\_\\ ",
}

// showBanner prints the logo and, unless skipFill is set, fills a ballot
// box below it.
func showBanner(w io.Writer, skipFill bool, frameDelay time.Duration) {
	border := strings.Repeat("═", bannerWidth)

	fmt.Fprintf(w, "\n  %s╔%s╗%s\n", cyan, border, reset)
	for _, line := range logo {
		fmt.Fprintf(w, "  %s║%s%-*s%s║%s\n", cyan, yellow, bannerWidth, line, cyan, reset)
	}
	fmt.Fprintf(w, "  %s╚%s╝%s\n", cyan, border, reset)

	if skipFill {
		fmt.Fprint(w, "\n")
		return
	}

	fmt.Fprintf(w, moveUp, 1)
	fmt.Fprintf(w, "%s  %s╠%s╣%s\n", clearLine, cyan, border, reset)

	const slots = 20
	for filled := 0; filled <= slots; filled++ {
		bar := strings.Repeat("█", filled*(bannerWidth-2)/slots)
		fmt.Fprintf(w, "%s  %s║ %s%-*s%s ║%s\n", clearLine, cyan, green, bannerWidth-2, bar, cyan, reset)
		fmt.Fprintf(w, "%s  %s╚%s╝%s\n", clearLine, cyan, border, reset)
		if filled < slots {
			fmt.Fprintf(w, moveUp, 2)
		}
		time.Sleep(frameDelay)
	}
	fmt.Fprint(w, "\n")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args, os.LookupEnv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%sInvalid configuration: %v%s\n", red, err, reset)
		return 2
	}

	if cfg.ShowVersion {
		fmt.Printf("votedesk %s\n", version)
		return 0
	}

	showBanner(os.Stdout, cfg.NoAnimate, 40*time.Millisecond)

	appLog := logger.NewWithOptions(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.ParseFormat(cfg.LogFormat),
	})

	client := votingapi.NewHTTPClient(cfg.APIBaseURL, cfg.RequestTimeout, appLog)

	a, err := app.New(appLog, client, web.GetTemplatesFS(), web.GetStaticFS(), app.Options{
		DBPath:       cfg.DBPath,
		Port:         cfg.Port,
		PageSize:     cfg.PageSize,
		TickInterval: cfg.TickInterval,
		ShareURL:     cfg.ShareURL,
		NoAnimate:    cfg.NoAnimate,
		Timeout:      cfg.RequestTimeout,
	})
	if err != nil {
		appLog.Error("Failed to initialize application", "error", err)
		return 1
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.Run()
	}()

	localURL := cfg.LocalURL()
	appLog.Info("VoteDesk ready", "url", localURL, "api", cfg.APIBaseURL, "share_url", a.ShareURL())

	if !cfg.NoBrowser {
		go func() {
			if err := browser.OpenWhenReady(ctx, localURL, a.Ready()); err != nil && ctx.Err() == nil {
				appLog.Warn("Could not open browser", "error", err)
			}
		}()
	}

	switch {
	case cfg.NoKeyboard:
	case !stdinIsTerminal():
		fmt.Printf("\n%sKeyboard shortcuts disabled (stdin is not a terminal)%s\n\n", yellow, reset)
	default:
		k := &keys{
			out:     os.Stdout,
			log:     appLog,
			url:     localURL,
			open:    browser.Open,
			signOut: a.SignOut,
			quit:    stop,
		}
		k.printHelp()
		restore := listenForKeyboard(ctx, k)
		defer restore()
	}

	select {
	case err := <-serverErr:
		if err != nil {
			appLog.Error("Server stopped", "error", err)
			return 1
		}
	case <-ctx.Done():
		fmt.Printf("%sShutting down server...%s\n", yellow, reset)
	}
	return 0
}
