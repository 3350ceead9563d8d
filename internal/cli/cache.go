package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/roach88/refc/internal/store"
)

// CacheOptions holds flags shared by the cache subcommands.
type CacheOptions struct {
	*RootOptions
	Database string
}

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the build cache",
		Long: `The build cache is a SQLite database written by "refc compile --cache".
It records every build of a module with the outcome of each function, the
refcounted IR of compiled functions and the emitted C.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the cache database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newCacheListCommand(opts))
	cmd.AddCommand(newCacheStatsCommand(opts))
	cmd.AddCommand(newCachePruneCommand(opts))
	cmd.AddCommand(newCacheExportCommand(opts))
	cmd.AddCommand(newCacheImportCommand(opts))
	return cmd
}

// withStore opens the cache for the duration of fn. The database must
// already exist.
func (o *CacheOptions) withStore(fn func(*store.Store) error) error {
	if _, err := os.Stat(o.Database); err != nil {
		return WrapExitError(ExitCommandError, "cache not found", err)
	}
	st, err := store.Open(o.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open cache", err)
	}
	defer st.Close()
	return fn(st)
}

func newCacheListCommand(opts *CacheOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list [module]",
		Short:         "List recorded builds",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			module := ""
			if len(args) == 1 {
				module = args[0]
			}
			formatter := newFormatter(opts.RootOptions, cmd)
			return opts.withStore(func(st *store.Store) error {
				builds, err := st.Builds(cmd.Context(), module)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list builds", err)
				}
				if formatter.JSON() {
					return formatter.Success(builds)
				}
				if len(builds) == 0 {
					fmt.Fprintln(formatter.Writer, "No builds recorded.")
					return nil
				}
				for _, b := range builds {
					fmt.Fprintf(formatter.Writer, "%4d  %s  %s  %d/%d native  abi %d api %d\n",
						b.Seq, b.ID, b.Module, b.Compiled(), len(b.Functions), b.ABIVersion, b.APIVersion)
				}
				return nil
			})
		},
	}
}

func newCacheStatsCommand(opts *CacheOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show cache size",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)
			return opts.withStore(func(st *store.Store) error {
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read stats", err)
				}
				if formatter.JSON() {
					return formatter.Success(stats)
				}
				fmt.Fprintf(formatter.Writer, "%d build(s), %d artifact(s), %s stored (%s uncompressed)\n",
					stats.Builds, stats.Artifacts,
					units.HumanSize(float64(stats.StoredBytes)),
					units.HumanSize(float64(stats.RawBytes)))
				return nil
			})
		},
	}
}

func newCachePruneCommand(opts *CacheOptions) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:           "prune",
		Short:         "Delete old builds",
		Long:          "Keep the newest --keep builds of each module and delete the rest together with artifacts no remaining build uses.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 0 {
				return NewExitError(ExitCommandError, "--keep must be non-negative")
			}
			formatter := newFormatter(opts.RootOptions, cmd)
			return opts.withStore(func(st *store.Store) error {
				builds, artifacts, err := st.Prune(cmd.Context(), keep)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to prune", err)
				}
				if formatter.JSON() {
					return formatter.Success(map[string]int64{"builds": builds, "artifacts": artifacts})
				}
				fmt.Fprintf(formatter.Writer, "Removed %d build(s) and %d artifact(s)\n", builds, artifacts)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 5, "builds to keep per module")
	return cmd
}

func newCacheExportCommand(opts *CacheOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:           "export <build-id|module>",
		Short:         "Write one build as an xz-compressed bundle",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)
			return opts.withStore(func(st *store.Store) error {
				ctx := cmd.Context()
				id := args[0]
				// A module name exports its latest build.
				if b, err := st.LatestBuild(ctx, id); err == nil {
					id = b.ID
				} else if !errors.Is(err, store.ErrNotFound) {
					return WrapExitError(ExitCommandError, "failed to look up build", err)
				}

				var w io.Writer = formatter.Writer
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return WrapExitError(ExitCommandError, "failed to create bundle", err)
					}
					defer f.Close()
					w = f
				}
				if err := st.Export(ctx, w, id); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return WrapExitError(ExitCommandError, fmt.Sprintf("no build %s", args[0]), err)
					}
					return WrapExitError(ExitCommandError, "failed to export", err)
				}
				if output != "" {
					formatter.VerboseLog("Exported build %s to %s", id, output)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "bundle file (default stdout)")
	return cmd
}

func newCacheImportCommand(opts *CacheOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "import <bundle>",
		Short:         "Record a build from an exported bundle",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(opts.RootOptions, cmd)
			f, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open bundle", err)
			}
			defer f.Close()
			return opts.withStore(func(st *store.Store) error {
				b, err := st.Import(cmd.Context(), f)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to import", err)
				}
				if formatter.JSON() {
					return formatter.Success(b)
				}
				fmt.Fprintf(formatter.Writer, "Imported build %s of %s\n", b.ID, b.Module)
				return nil
			})
		},
	}
}
