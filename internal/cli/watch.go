package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Output   string
	XZ       bool
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <module.cue|dir>...",
		Short: "Recompile modules whenever they change",
		Long: `Compile the modules once, then again each time one of the files is
written. Errors are reported and watching continues. Press Ctrl-C to stop.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", ".", "output directory")
	cmd.Flags().BoolVar(&opts.XZ, "xz", false, "compress emitted C with xz")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 100*time.Millisecond, "quiet period before recompiling")

	return cmd
}

func runWatch(opts *WatchOptions, args []string, cmd *cobra.Command) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := expandPaths(args)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot watch", err)
	}
	fw, err := newFileWatch(files)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot watch", err)
	}
	defer fw.Close()

	copts := &CompileOptions{RootOptions: opts.RootOptions, Output: opts.Output, XZ: opts.XZ}
	build := func() {
		if err := runCompile(ctx, copts, args, cmd); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
		}
	}
	build()
	slog.Info("watching", "files", len(files))
	return fw.run(ctx, opts.Debounce, build)
}

// fileWatch reports changes to a fixed set of files. It watches their
// directories, since editors commonly replace a file by renaming a new one
// over it.
type fileWatch struct {
	w     *fsnotify.Watcher
	files map[string]bool
}

func newFileWatch(files []string) (*fileWatch, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &fileWatch{w: w, files: make(map[string]bool, len(files))}
	dirs := map[string]bool{}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			w.Close()
			return nil, err
		}
		fw.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return fw, nil
}

func (fw *fileWatch) Close() error { return fw.w.Close() }

// run calls rebuild once a watched file has been quiet for debounce, until
// ctx is done.
func (fw *fileWatch) run(ctx context.Context, debounce time.Duration, rebuild func()) error {
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.w.Events:
			if !ok {
				return nil
			}
			if !fw.files[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("module changed", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-fw.w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		case <-timer.C:
			rebuild()
		}
	}
}
