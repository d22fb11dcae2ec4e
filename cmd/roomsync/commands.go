package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MarcoPoloResearchLab/roomsync/internal/apps"
	"github.com/MarcoPoloResearchLab/roomsync/internal/apps/seating"
	"github.com/MarcoPoloResearchLab/roomsync/internal/apps/taskboard"
	"github.com/MarcoPoloResearchLab/roomsync/internal/collab"
	"github.com/MarcoPoloResearchLab/roomsync/internal/localstore"
)

const snapshotTimeLayout = "2006-01-02 15:04"

var errDisplayNameUnsupported = errors.New("display names are only used by the taskboard app")

func withClient(cmd *cobra.Command, join bool, fn func(runtime *clientRuntime, out io.Writer) error) (err error) {
	runtime, err := openClient(cmd.Context(), join)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, runtime.Close())
	}()
	return fn(runtime, cmd.OutOrStdout())
}

func printSummary(out io.Writer, runtime *clientRuntime) {
	fmt.Fprintf(out, "%s (%s)\n", runtime.session.Name(), runtime.mode())
	for _, line := range runtime.session.Summary() {
		fmt.Fprintf(out, "  %s\n", line)
	}
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Join the room and print the state whenever it changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, true, func(runtime *clientRuntime, out io.Writer) error {
				signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				changes := make(chan collab.ChangeSource, 16)
				unsubscribe := runtime.session.OnChange(func(source collab.ChangeSource) {
					select {
					case changes <- source:
					default:
					}
				})
				defer unsubscribe()

				printSummary(out, runtime)
				for {
					select {
					case <-signalCtx.Done():
						return nil
					case source := <-changes:
						fmt.Fprintf(out, "\n[%s] %s change\n", time.Now().Format(time.TimeOnly), source)
						printSummary(out, runtime)
					}
				}
			})
		},
	}
}

func newShowCommand() *cobra.Command {
	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, true, func(runtime *clientRuntime, out io.Writer) error {
				if !asJSON {
					printSummary(out, runtime)
					return nil
				}
				encoded, err := runtime.session.StateJSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(encoded))
				return err
			})
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Print the full state document")
	return showCmd
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the state with a JSON document and sync it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return withClient(cmd, true, func(runtime *clientRuntime, out io.Writer) error {
				if err := runtime.session.Import(payload); err != nil {
					return err
				}
				printSummary(out, runtime)
				return nil
			})
		},
	}
}

func newSnapshotCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [label]",
		Short: "Save a snapshot to the room history, or locally when offline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := strings.Join(args, " ")
			return withClient(cmd, true, func(runtime *clientRuntime, out io.Writer) error {
				snapshot, err := runtime.session.CreateSnapshot(cmd.Context(), label)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "saved %s %q (%s)\n", snapshot.ID, snapshot.Label, runtime.mode())
				return err
			})
		},
	}
}

func newHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List snapshots, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, true, func(runtime *clientRuntime, out io.Writer) error {
				entries := runtime.session.History()
				if len(entries) == 0 {
					_, err := fmt.Fprintf(out, "no snapshots (%s)\n", runtime.mode())
					return err
				}
				for _, entry := range entries {
					fmt.Fprintf(out, "%s  %s  %-24s %s\n",
						entry.ID,
						entry.SavedAt.Local().Format(snapshotTimeLayout),
						entry.Label,
						runtime.session.DescribeSnapshot(entry))
				}
				return nil
			})
		},
	}
	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every snapshot of the room, or the local list when offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, true, func(runtime *clientRuntime, out io.Writer) error {
				if err := runtime.session.ClearHistory(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintf(out, "history cleared (%s)\n", runtime.mode())
				return err
			})
		},
	})
	return historyCmd
}

func newRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Replace the state with a snapshot from history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, true, func(runtime *clientRuntime, out io.Writer) error {
				if err := runtime.session.RestoreSnapshot(args[0]); err != nil {
					return err
				}
				printSummary(out, runtime)
				return nil
			})
		},
	}
}

func newExportCommand() *cobra.Command {
	var output string
	exportCmd := &cobra.Command{
		Use:       "export <tables|state|snapshot> [snapshot-id]",
		Short:     "Write the seating table setup as CSV, or the state or a snapshot as JSON",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"tables", "state", "snapshot"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, args[0] == "snapshot", func(runtime *clientRuntime, out io.Writer) error {
				now := time.Now()
				switch args[0] {
				case "tables":
					if runtime.session.Name() != apps.Seating {
						return fmt.Errorf("%w: %s", apps.ErrExportUnsupported, runtime.session.Name())
					}
					return writeOutput(out, output, seating.TableSetupFileName(now), runtime.session.ExportTableSetup)
				case "state":
					encoded, err := runtime.session.StateJSON()
					if err != nil {
						return err
					}
					fileName := fmt.Sprintf("%s-state-%s.json", runtime.session.Name(), seating.FileTimestamp(now))
					if runtime.session.Name() == apps.Seating {
						fileName = seating.SnapshotFileName(now)
					}
					return writeOutput(out, output, fileName, func(w io.Writer) error {
						_, err := w.Write(append(encoded, '\n'))
						return err
					})
				case "snapshot":
					if len(args) != 2 {
						return errors.New("export snapshot needs a snapshot id")
					}
					for _, entry := range runtime.session.History() {
						if entry.ID != args[1] {
							continue
						}
						var pretty bytes.Buffer
						if err := json.Indent(&pretty, entry.Payload, "", "  "); err != nil {
							return err
						}
						pretty.WriteByte('\n')
						fileName := fmt.Sprintf("%s-snapshot-%s.json", runtime.session.Name(), seating.FileTimestamp(entry.SavedAt.Local()))
						if runtime.session.Name() == apps.Seating {
							fileName = seating.SnapshotFileName(entry.SavedAt.Local())
						}
						return writeOutput(out, output, fileName, func(w io.Writer) error {
							_, err := pretty.WriteTo(w)
							return err
						})
					}
					return collab.ErrSnapshotNotFound
				default:
					return fmt.Errorf("unknown export %q", args[0])
				}
			})
		},
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "", "Output file, - for stdout (default: a timestamped file name)")
	return exportCmd
}

func newNameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "name [display-name]",
		Short: "Show or set the display name used for the taskboard \"mine\" view",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, false, func(runtime *clientRuntime, out io.Writer) error {
				if runtime.session.Name() != apps.Taskboard {
					return errDisplayNameUnsupported
				}
				preferences := localstore.NewPreferences(runtime.store, taskboard.DisplayNameKey)
				if len(args) == 1 {
					if err := preferences.SetDisplayName(args[0]); err != nil {
						return err
					}
				}
				name := preferences.DisplayName()
				if name == "" {
					name = "(not set)"
				}
				_, err := fmt.Fprintln(out, name)
				return err
			})
		},
	}
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(stdout io.Writer, path, fallback string, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}
	if path == "" {
		path = fallback
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "wrote %s\n", path)
	return err
}
