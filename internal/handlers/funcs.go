package handlers

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/abrezinsky/votedesk/internal/pollstatus"
)

var titleCase = cases.Title(language.English)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"comma":     func(n int) string { return humanize.Comma(int64(n)) },
		"ordinal":   humanize.Ordinal,
		"ago":       humanize.Time,
		"date":      func(t time.Time) string { return t.Local().Format("Jan 2, 2006 3:04 PM") },
		"isoTime":   func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"title":     titleCase.String,
		"label":     func(s fmt.Stringer) string { return titleCase.String(s.String()) },
		"percent":   func(p float64) string { return fmt.Sprintf("%.1f%%", p) },
		"countdown": formatCountdown,
		"fieldErr":  fieldErr,
		"add":       func(a, b int) int { return a + b },
		"sub":       func(a, b int) int { return a - b },
		"seq":       seq,
	}
}

// formatCountdown renders "2d 03h 04m 05s", dropping leading zero units.
func formatCountdown(c *pollstatus.Countdown) string {
	if c == nil {
		return ""
	}
	var parts []string
	if c.Days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", c.Days))
	}
	if c.Days > 0 || c.Hours > 0 {
		parts = append(parts, fmt.Sprintf("%02dh", c.Hours))
	}
	parts = append(parts, fmt.Sprintf("%02dm", c.Minutes), fmt.Sprintf("%02ds", c.Seconds))
	return strings.Join(parts, " ")
}

func fieldErr(fields map[string][]string, name string) string {
	if msgs := fields[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// seq returns 1..n
func seq(n int) []int {
	out := make([]int, 0, max(n, 0))
	for i := 1; i <= n; i++ {
		out = append(out, i)
	}
	return out
}
