package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/app"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/audit"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/bridge"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
	"github.com/spf13/cobra"
)

func newModulesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List settings modules and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				reports := a.Modules()
				if asJSON {
					return printJSON(cmd.OutOrStdout(), reports)
				}
				deps := a.Settings.Dependencies()
				printModules(cmd.OutOrStdout(), reports, deps)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list <module>",
		Short: "Show every setting of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				views, err := a.Describe(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), views)
				}
				printSettings(cmd.OutOrStdout(), views)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <module> <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				view, err := a.Get(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), displayValue(view))
				return nil
			})
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <module> <key> <value>",
		Short: "Change one setting",
		Long: `Change one setting. The value is parsed as the key's declared type:
booleans accept true/false/yes/no/on/off/1/0 and string sets are
comma-separated.

Numeric values outside a key's range are clamped; the stored value is
printed.`,
		Example: `  consolesettings set editor fontSize 16
  consolesettings set git userEmail dev@example.com
  consolesettings set ai apiKey sk-...`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				view, err := a.Set(args[0], args[1], args[2])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s.%s = %s\n", okMark(), args[0], args[1], displayValue(view))
				return nil
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [module]",
		Short: "Restore defaults for one module, or for all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return withApp(cmd, func(a *app.App) error {
				if err := a.Reset(id); err != nil {
					return err
				}
				target := id
				if target == "" {
					target = "all modules"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s reset %s\n", okMark(), target)
				return nil
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write every module's settings to a file or stdout",
		Long: `Write every module's settings as a versioned document. Sensitive values
are never exported. The format is taken from --format, or from the file
extension (.json, .yaml, .yml).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			f, err := resolveFormat(format, path)
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app.App) error {
				if path == "" {
					return a.Settings.WriteExport(cmd.OutOrStdout(), f)
				}
				return writeExportFile(a.Settings, path, f)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Document format (json, yaml)")
	return cmd
}

func writeExportFile(m *settings.Manager, path string, format settings.Format) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := m.WriteExport(out, format); err != nil {
		out.Close()
		return fmt.Errorf("failed to write export: %w", err)
	}
	return out.Close()
}

func newImportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import settings exported by this or an older version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := resolveFormat(format, args[0])
			if err != nil {
				return err
			}
			in, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer in.Close()

			return withApp(cmd, func(a *app.App) error {
				report, err := a.Import(in, f)
				if err != nil {
					return err
				}
				printImportReport(cmd.OutOrStdout(), report)
				if len(report.Imported) == 0 && len(report.Failed) > 0 {
					return errors.New("no module could be imported")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Document format (json, yaml)")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		event  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history [module]",
		Short: "Show recent setting changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				if a.Audit == nil {
					return errors.New("the change log is disabled (audit.enable=false)")
				}
				filters := &audit.Filters{Event: event, PageSize: limit}
				if len(args) == 1 {
					filters.ModuleID = args[0]
				}
				records, total, err := a.Audit.List(cmd.Context(), filters)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), records)
				}
				printHistory(cmd.OutOrStdout(), records, total)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of changes to show")
	cmd.Flags().StringVar(&event, "event", "", "Only show one event type (setting_changed, module_reset, settings_imported)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check encrypted storage and module configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				report := a.Doctor()
				if asJSON {
					if err := printJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				} else {
					printDoctor(cmd.OutOrStdout(), report)
				}
				if !report.Healthy() {
					return errors.New("encrypted storage is not working")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve settings to the editor surface over loopback HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(cmd, func(a *app.App) error {
				return serve(ctx, a)
			})
		},
	}
	cmd.Flags().StringP("listen", "l", "127.0.0.1:7420", "Loopback listen address")
	cmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")
	return cmd
}

func serve(ctx context.Context, a *app.App) error {
	a.Start(ctx)
	started := time.Now()
	if err := bridge.New(a).Start(ctx); err != nil {
		return fmt.Errorf("bridge error: %w", err)
	}
	a.Logger.WithField("uptime", time.Since(started).Round(time.Second).String()).Info("Settings bridge stopped")
	return nil
}

// resolveFormat prefers an explicit --format over the file extension
func resolveFormat(flag, path string) (settings.Format, error) {
	if flag != "" {
		return settings.ParseFormat(flag)
	}
	if path == "" {
		return settings.FormatJSON, nil
	}
	return settings.ParseFormat(filepath.Ext(path))
}
