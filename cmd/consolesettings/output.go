package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/app"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/audit"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/modules"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

func okMark() string { return color.GreenString("✓") }

func failMark() string { return color.RedString("✗") }

func warnMark() string { return color.YellowString("!") }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// displayValue renders a setting for the terminal. Sensitive values are
// never shown, only whether they are set.
func displayValue(v app.SettingView) string {
	if v.Sensitive {
		if v.Set {
			return "(set)"
		}
		return "(not set)"
	}
	switch val := v.Value.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(val, ",")
	default:
		return fmt.Sprint(val)
	}
}

func colorStatus(status string) string {
	switch modules.Status(status) {
	case modules.StatusConfigured:
		return color.GreenString(status)
	case modules.StatusDisabled:
		return color.New(color.Faint).Sprint(status)
	case "":
		return "-"
	default:
		return color.YellowString(status)
	}
}

func printModules(w io.Writer, reports []app.ModuleReport, deps map[string][]string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSTATE\tSTATUS\tNOTIFIES")
	for _, r := range reports {
		state := r.State
		if r.Unsaved {
			state += "*"
		}
		notifies := strings.Join(deps[r.ID], ",")
		if notifies == "" {
			notifies = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", color.CyanString(r.ID), state, colorStatus(r.Status), notifies)
	}
	tw.Flush()
}

func printSettings(w io.Writer, views []app.SettingView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tVALUE\tDEFAULT")
	for _, v := range views {
		value := displayValue(v)
		if v.Set && !v.Sensitive {
			value = color.New(color.Bold).Sprint(value)
		}
		def := "-"
		if !v.Sensitive {
			def = displayValue(app.SettingView{Value: v.Default})
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Key, strings.ToLower(v.Type), value, def)
	}
	tw.Flush()
}

func printImportReport(w io.Writer, report *settings.ImportReport) {
	fmt.Fprintf(w, "Source version %s\n", report.SourceVersion)
	for _, step := range report.Migrations {
		fmt.Fprintf(w, "  %s migrated %s\n", color.CyanString("→"), step)
	}
	for _, id := range report.Imported {
		fmt.Fprintf(w, "%s %s\n", okMark(), id)
	}

	failed := make([]string, 0, len(report.Failed))
	for id := range report.Failed {
		failed = append(failed, id)
	}
	sort.Strings(failed)
	for _, id := range failed {
		fmt.Fprintf(w, "%s %s: %v\n", failMark(), id, report.Failed[id])
	}
}

func printHistory(w io.Writer, records []*audit.ChangeRecord, total int) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No changes recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEVENT\tSETTING\tVALUE")
	for _, rec := range records {
		target := rec.ModuleID
		if rec.Key != "" {
			target += "." + rec.Key
		}
		if target == "" {
			target = "-"
		}
		ts := time.Unix(rec.Timestamp, 0).Local().Format(time.DateTime)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ts, rec.Event, target, rec.Value)
	}
	tw.Flush()
	if total > len(records) {
		fmt.Fprintf(w, "(%d of %d changes)\n", len(records), total)
	}
}

func printDoctor(w io.Writer, r app.Report) {
	fmt.Fprintf(w, "Data directory  %s\n", r.DataDir)
	fmt.Fprintf(w, "Backend         %s\n", r.Backend)
	fmt.Fprintf(w, "Schema version  %s\n", r.SchemaVersion)

	switch {
	case r.EncryptionAvailable && r.EncryptionVerified:
		fmt.Fprintf(w, "%s encrypted storage verified\n", okMark())
	case r.EncryptionAvailable:
		fmt.Fprintf(w, "%s encrypted storage failed the round-trip check\n", failMark())
	default:
		fmt.Fprintf(w, "%s encrypted storage unavailable: %s\n", failMark(), r.EncryptionError)
		fmt.Fprintf(w, "  %s sensitive values are stored in plaintext\n", color.CyanString("→"))
	}
	if r.AuditEnabled {
		fmt.Fprintf(w, "%s change log enabled\n", okMark())
	} else {
		fmt.Fprintf(w, "%s change log disabled\n", warnMark())
	}

	fmt.Fprintln(w)
	for _, m := range r.Modules {
		if m.Status == "" {
			continue
		}
		mark := okMark()
		switch modules.Status(m.Status) {
		case modules.StatusConfigured:
		case modules.StatusDisabled:
			mark = color.New(color.Faint).Sprint("-")
		default:
			mark = warnMark()
		}
		fmt.Fprintf(w, "%s %-8s %s\n", mark, m.ID, colorStatus(m.Status))
	}
}
