// phpconsistent checks PHP Xdebug traces against the docblocks of the traced code.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/phobologic/phpconsistent/internal/config"
	"github.com/phobologic/phpconsistent/internal/discover"
	"github.com/phobologic/phpconsistent/internal/engine"
	"github.com/phobologic/phpconsistent/internal/model"
	"github.com/phobologic/phpconsistent/internal/ranking"
	"github.com/phobologic/phpconsistent/internal/resolver"
	"github.com/phobologic/phpconsistent/internal/sink"
	"github.com/phobologic/phpconsistent/internal/toon"
)

var version = "dev"

// errFailures is returned by check when any trace disagreed with its docblocks.
var errFailures = errors.New("docblock mismatches found")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errFailures) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	verbose    bool
	logger     *zap.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "phpconsistent",
		Short:         "Check PHP Xdebug traces against docblock types",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			g.logger = newLogger(stderr, g.verbose)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("phpconsistent {{.Version}}\n")

	root.PersistentFlags().StringVar(&g.configPath, "config", config.DefaultPath, "configuration file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newCheckCmd(g, stdout),
		newWatchCmd(g, stdout),
		newSignaturesCmd(g, stdout, stderr),
		newHistoryCmd(stdout),
		newInitCmd(stdout, stderr),
	)
	return root
}

// newLogger builds a production logger writing JSON lines to w.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), zapcore.AddSync(w), cfg.Level)
	return zap.New(core)
}

// analysisFlags are the config overrides accepted by check and watch.
type analysisFlags struct {
	source         string
	depth          int
	ignoreNull     bool
	sink           string
	logLocation    string
	ignoreFiles    []string
	ignoreTargets  []string
	ignoreFuncs    []string
	workers        int
	removeTrace    bool
	excludeSources []string
	skipTests      bool
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.source, "source", "s", "", "PHP source root (default from config, then .)")
	fl.IntVarP(&f.depth, "depth", "d", 0, "call nesting levels below the entry point to check")
	fl.BoolVar(&f.ignoreNull, "ignore-null", false, "accept null for any declared type")
	fl.StringVar(&f.sink, "sink", "", "failure sink: none, file, console or sqlite")
	fl.StringVar(&f.logLocation, "log-location", "", "file or database path for the file and sqlite sinks")
	fl.StringSliceVar(&f.ignoreFiles, "ignore-file", nil, "skip calls made from files containing this substring")
	fl.StringSliceVar(&f.ignoreTargets, "ignore-target", nil, "skip methods of classes containing this substring")
	fl.StringSliceVar(&f.ignoreFuncs, "ignore-function", nil, "skip functions containing this substring")
	fl.IntVarP(&f.workers, "workers", "j", 0, "traces analyzed concurrently")
	fl.BoolVar(&f.removeTrace, "remove-trace", false, "delete each trace after analysis")
	fl.StringSliceVar(&f.excludeSources, "exclude-source", nil, "skip source paths containing this substring")
	fl.BoolVar(&f.skipTests, "skip-tests", false, "do not index test sources (tests/ dirs, *Test.php)")
}

// apply overlays the flags the user set on cfg.
func (f *analysisFlags) apply(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	fl := cmd.Flags()
	if fl.Changed("source") {
		cfg.SourceRoot = f.source
	}
	if fl.Changed("depth") {
		cfg.Depth = f.depth
	}
	if fl.Changed("ignore-null") {
		cfg.IgnoreNull = f.ignoreNull
	}
	if fl.Changed("sink") {
		cfg.LogSink = f.sink
	}
	if fl.Changed("log-location") {
		cfg.LogLocation = f.logLocation
	}
	if fl.Changed("ignore-file") {
		cfg.IgnoredFilePatterns = append(cfg.IgnoredFilePatterns, f.ignoreFiles...)
	}
	if fl.Changed("ignore-target") {
		cfg.IgnoredTargetPatterns = append(cfg.IgnoredTargetPatterns, f.ignoreTargets...)
	}
	if fl.Changed("ignore-function") {
		cfg.IgnoredFunctionPatterns = append(cfg.IgnoredFunctionPatterns, f.ignoreFuncs...)
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fl.Changed("remove-trace") {
		cfg.RemoveTrace = f.removeTrace
	}
	return cfg, cfg.Validate()
}

// setup loads the configuration, indexes the sources and opens the sink.
// The caller closes the returned sink.
func (f *analysisFlags) setup(cmd *cobra.Command, g *globals, stdout io.Writer) (*engine.Engine, sink.Sink, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg, err = f.apply(cmd, cfg); err != nil {
		return nil, nil, err
	}

	ix, err := resolver.Load(cmd.Context(), cfg.SourceRoot, resolver.Options{
		Excludes:  f.excludeSources,
		SkipTests: f.skipTests,
		Workers:   cfg.Workers,
		Logger:    g.logger,
	})
	switch {
	case errors.Is(err, resolver.ErrNoSources):
		// Nothing to check against: every call is unresolvable.
		g.logger.Warn("no PHP sources found", zap.String("root", cfg.SourceRoot))
		ix = resolver.NewIndex(nil)
	case err != nil:
		return nil, nil, fmt.Errorf("indexing sources: %w", err)
	}

	s, err := sink.Open(cfg, stdout)
	if err != nil {
		return nil, nil, err
	}
	return engine.New(cfg, ix, engine.WithSink(s), engine.WithLogger(g.logger)), s, nil
}

func newCheckCmd(g *globals, stdout io.Writer) *cobra.Command {
	var (
		af     analysisFlags
		top    int
		target string
		kinds  []string
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "check trace [trace...]",
		Short: "Analyze trace files and report docblock mismatches",
		Long: `Analyze Xdebug computerized traces (.xt) against the docblocks of the PHP
sources under --source. A trace path may omit the .xt extension.

Exits with status 1 when any mismatch is found.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kindFilter, err := parseKinds(kinds)
			if err != nil {
				return err
			}
			eng, s, err := af.setup(cmd, g, stdout)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			results, err := eng.AnalyzeFiles(cmd.Context(), args)
			if err != nil && !errors.Is(err, engine.ErrSinkWrite) {
				return err
			}
			sinkErr := err

			var all []model.Failure
			for i := range results {
				if target != "" {
					results[i].Failures = ranking.FilterByTarget(results[i].Failures, target)
				}
				if len(kindFilter) > 0 {
					results[i].Failures = ranking.FilterByKind(results[i].Failures, kindFilter...)
				}
				all = append(all, results[i].Failures...)
			}

			if !quiet {
				var hotspots []ranking.Hotspot
				if top > 0 {
					hotspots = ranking.Hotspots(all, top)
				}
				_, _ = fmt.Fprintln(stdout, toon.EncodeReport(results, hotspots))
			}

			if sinkErr != nil {
				return sinkErr
			}
			if len(all) > 0 {
				return errFailures
			}
			return nil
		},
	}

	af.register(cmd)
	cmd.Flags().IntVarP(&top, "top", "n", 0, "also list the N targets with the most failures")
	cmd.Flags().StringVar(&target, "target", "", "only report targets containing this substring")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only report failures of these kinds: count, name, type")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the TOON report")
	return cmd
}

func newSignaturesCmd(g *globals, stdout, stderr io.Writer) *cobra.Command {
	var (
		cachePath   string
		maxFileSize int64
		excludes    []string
		skipTests   bool
	)

	cmd := &cobra.Command{
		Use:   "signatures [root]",
		Short: "List the documented signatures and class hierarchy of PHP sources",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 0 {
				root = args[0]
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolving root: %w", err)
			}

			if cachePath != "" {
				files, err := discover.Files(root, discover.Options{Excludes: excludes, SkipTests: skipTests})
				if err == nil && cacheIsFresh(cachePath, root, files) {
					if data, err := os.ReadFile(cachePath); err == nil {
						_, _ = stdout.Write(data)
						return nil
					}
				}
			}

			ix, err := resolver.Load(cmd.Context(), root, resolver.Options{
				Excludes:    excludes,
				SkipTests:   skipTests,
				MaxFileSize: maxFileSize,
				Logger:      g.logger,
			})
			if err != nil {
				return err
			}

			output := toon.EncodeSignatures(ix)
			if cachePath != "" {
				if err := os.WriteFile(cachePath, []byte(output+"\n"), 0o644); err != nil {
					_, _ = fmt.Fprintf(stderr, "Warning: writing cache: %v\n", err)
				}
			}
			_, _ = fmt.Fprintln(stdout, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&cachePath, "cache", "", "cache file path")
	cmd.Flags().Int64Var(&maxFileSize, "max-file-size", resolver.DefaultMaxFileSize, "skip files larger than this many bytes")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "skip paths containing this substring")
	cmd.Flags().BoolVar(&skipTests, "skip-tests", false, "leave out test sources (tests/ dirs, *Test.php)")
	return cmd
}

// parseKinds validates --kind values.
func parseKinds(values []string) ([]model.FailureKind, error) {
	var kinds []model.FailureKind
	for _, v := range values {
		switch k := model.FailureKind(strings.ToLower(strings.TrimSpace(v))); k {
		case model.CountMismatch, model.NameMismatch, model.TypeMismatch:
			kinds = append(kinds, k)
		default:
			return nil, fmt.Errorf("unknown failure kind %q (want count, name or type)", v)
		}
	}
	return kinds, nil
}

// cacheIsFresh reports whether the cache file is newer than every source file.
func cacheIsFresh(cachePath, root string, files []discover.FileEntry) bool {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	cacheMtime := cacheInfo.ModTime()

	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, f.Path))
		if err != nil {
			return false
		}
		if !fi.ModTime().Before(cacheMtime) {
			return false
		}
	}
	return true
}
