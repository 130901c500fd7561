package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phobologic/phpconsistent/internal/engine"
	"github.com/phobologic/phpconsistent/internal/toon"
	"github.com/phobologic/phpconsistent/internal/watch"
)

func newWatchCmd(g *globals, stdout io.Writer) *cobra.Command {
	var (
		af       analysisFlags
		settle   time.Duration
		existing bool
	)

	cmd := &cobra.Command{
		Use:   "watch dir",
		Short: "Analyze traces as they are written to a directory",
		Long: `Watch dir for new Xdebug trace files and analyze each one once it has
stopped changing. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, s, err := af.setup(cmd, g, stdout)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			w := watch.New(args[0], analyzeHandler(eng, stdout), watch.Options{
				Extension: engine.TraceExtension,
				Settle:    settle,
				Existing:  existing,
				Logger:    g.logger,
			})
			stats, err := w.Run(cmd.Context())
			if err != nil {
				return err
			}
			g.logger.Info("watch finished",
				zap.Int("analyzed", stats.Analyzed),
				zap.Int("errors", stats.Errors))
			return nil
		},
	}

	af.register(cmd)
	cmd.Flags().DurationVar(&settle, "settle", watch.DefaultSettle, "how long a trace must be unchanged before analysis")
	cmd.Flags().BoolVar(&existing, "existing", false, "also analyze traces already in the directory")
	return cmd
}

// analyzeHandler prints the TOON report of every trace that produced failures.
func analyzeHandler(eng *engine.Engine, stdout io.Writer) watch.Handler {
	return func(ctx context.Context, path string) error {
		res, err := eng.AnalyzeFile(ctx, path)
		if len(res.Failures) > 0 {
			_, _ = fmt.Fprintln(stdout, toon.EncodeReport([]engine.Result{res}, nil))
		}
		return err
	}
}
