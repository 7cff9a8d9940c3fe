// Package output provides terminal output utilities for nixbrew.
//
// This package includes:
//   - Table rendering for installed packages, history, channel versions,
//     search results and cache entries
//   - A progress bar for multi-package upgrades
//   - A spinner for remote lookups
//
// Tables are rendered with go-pretty. Colour is only emitted when stdout is
// a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/nixbrew/internal/cache"
	"github.com/blackwell-systems/nixbrew/internal/nix"
	"github.com/blackwell-systems/nixbrew/internal/registry"
	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

func newTable(header table.Row) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(header)
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	return t
}

// RenderRegistryTable renders the installed packages. Records are expected
// sorted by name.
func RenderRegistryTable(records []*registry.Record, now time.Time) string {
	if len(records) == 0 {
		return "No packages installed with nixbrew.\n"
	}

	t := newTable(table.Row{"Package", "Version", "Origin", "Pinned", "Updated"})
	for _, rec := range records {
		pinned := ""
		if rec.Pinned {
			pinned = colorize(colorYellow, "pinned")
		}
		updated := "never"
		if last, ok := rec.History.Last(); ok {
			updated = formatRelativeTime(last.Timestamp, now)
		}
		t.AppendRow(table.Row{
			rec.Name,
			rec.Current.DisplayVersion(),
			rec.Current.Origin(),
			pinned,
			updated,
		})
	}
	return t.Render() + "\n"
}

// RenderHistoryTable renders a package history, oldest first.
func RenderHistoryTable(entries []registry.HistoryEntry) string {
	if len(entries) == 0 {
		return "No history recorded.\n"
	}

	t := newTable(table.Row{"#", "Version", "Origin", "Action", "Date"})
	for i, e := range entries {
		t.AppendRow(table.Row{
			strconv.Itoa(i + 1),
			e.Ref.DisplayVersion(),
			e.Ref.Origin(),
			colorize(actionColor(e.Action), string(e.Action)),
			e.Timestamp.Local().Format("2006-01-02 15:04"),
		})
	}
	return t.Render() + "\n"
}

// RenderVersionsTable renders what each channel offers for a package.
func RenderVersionsTable(versions []resolve.ChannelVersion) string {
	if len(versions) == 0 {
		return "No channels configured.\n"
	}

	t := newTable(table.Row{"Channel", "Branch", "Version"})
	for _, v := range versions {
		version := v.Version
		if v.Missing {
			version = colorize(colorGray, "not available")
		}
		t.AppendRow(table.Row{v.Channel.Label, v.Channel.Branch, version})
	}
	return t.Render() + "\n"
}

// RenderSearchTable renders `nix search` hits.
func RenderSearchTable(results []nix.SearchResult) string {
	if len(results) == 0 {
		return "No packages found.\n"
	}

	t := newTable(table.Row{"Package", "Version", "Description"})
	for _, r := range results {
		t.AppendRow(table.Row{attrName(r.AttrPath), r.Version, truncate(r.Description, 60)})
	}
	return t.Render() + "\n"
}

// RenderCacheTable renders cached resolutions with their expiry.
func RenderCacheTable(entries []*cache.Entry, now time.Time) string {
	if len(entries) == 0 {
		return "Resolution cache is empty.\n"
	}

	t := newTable(table.Row{"Package", "Descriptor", "Version", "Origin", "Expires"})
	for _, e := range entries {
		expires := formatUntil(e.ExpiresAt(), now)
		if e.Expired(now) {
			expires = colorize(colorRed, "expired")
		}
		t.AppendRow(table.Row{e.Package, e.Descriptor, e.Ref.DisplayVersion(), e.Ref.Origin(), expires})
	}
	return t.Render() + "\n"
}

func actionColor(a registry.Action) string {
	switch a {
	case registry.ActionInstall:
		return colorGreen
	case registry.ActionPin:
		return colorYellow
	case registry.ActionRollback:
		return colorRed
	default:
		return colorGray
	}
}

// attrName strips the "legacyPackages.<system>." prefix from a search hit.
func attrName(attrPath string) string {
	parts := strings.SplitN(attrPath, ".", 3)
	if len(parts) == 3 && (parts[0] == "legacyPackages" || parts[0] == "packages") {
		return parts[2]
	}
	return attrPath
}

// formatRelativeTime describes how long ago t was.
func formatRelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	case diff < 30*24*time.Hour:
		return plural(int(diff.Hours()/24), "day") + " ago"
	case diff < 365*24*time.Hour:
		return plural(int(diff.Hours()/24/30), "month") + " ago"
	default:
		return plural(int(diff.Hours()/24/365), "year") + " ago"
	}
}

// formatUntil describes how far in the future t is.
func formatUntil(t, now time.Time) string {
	diff := t.Sub(now)
	switch {
	case diff < time.Minute:
		return "in <1 minute"
	case diff < time.Hour:
		return "in " + plural(int(diff.Minutes()), "minute")
	default:
		return "in " + plural(int(diff.Hours()), "hour")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
