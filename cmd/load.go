package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cep-loader/internal/config"
	"github.com/sells-group/cep-loader/internal/enrich"
	"github.com/sells-group/cep-loader/internal/loader"
	"github.com/sells-group/cep-loader/internal/resilience"
	"github.com/sells-group/cep-loader/pkg/cep"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the input file, look up every CEP and upsert the records",
	Long: `Reads the file at input.path (.csv, .xls or .xlsx), strips every CEP down to
its digits, drops rows left without a CEP, then resolves and saves each row
concurrently. Per-row lookup or save failures are logged and do not change
the exit status; an unreadable input file does.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := runLoad(cmd.Context(), cfg, logger)
		return err
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

// runLoad executes one load. Errors are returned only for failures that stop
// the whole run: the input file, the store, or the configuration.
func runLoad(ctx context.Context, c *config.Config, log *zap.Logger) (enrich.Summary, error) {
	rows, err := loader.Load(ctx, c.Input.Path, loaderOptions(c.Input))
	if err != nil {
		log.Error("failed to load input file", zap.String("path", c.Input.Path), zap.Error(err))
		return enrich.Summary{}, err
	}

	normalized := cep.NormalizeRows(rows)
	log.Info("input loaded",
		zap.String("path", c.Input.Path),
		zap.Int("rows", len(rows)),
		zap.Int("dropped_without_cep", len(rows)-len(normalized)),
	)

	st, err := openStore(ctx, c.Store)
	if err != nil {
		log.Error("failed to open store", zap.String("driver", c.Store.Driver), zap.Error(err))
		return enrich.Summary{}, err
	}
	defer st.Close() //nolint:errcheck

	orch := enrich.New(newResolver(c.Lookup, log), st,
		enrich.WithLogger(log),
		enrich.WithConcurrency(c.Batch.MaxConcurrentRows),
	)

	start := time.Now()
	sum := orch.Run(ctx, normalized)
	log.Info("load complete",
		zap.Int("total", sum.Total),
		zap.Int("resolved", sum.Resolved),
		zap.Int("not_found", sum.NotFound),
		zap.Int("saved", sum.Saved),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return sum, nil
}

func loaderOptions(in config.InputConfig) loader.Options {
	opts := loader.Options{
		Encoding:   in.Encoding,
		SheetIndex: in.SheetIndex,
	}
	if r := []rune(in.Delimiter); len(r) == 1 {
		opts.Delimiter = r[0]
	}
	return opts
}

func newResolver(lc config.LookupConfig, log *zap.Logger) *cep.Client {
	opts := []cep.Option{
		cep.WithLogger(log),
		cep.WithRateLimit(lc.RateLimit),
	}
	if lc.BaseURL != "" {
		opts = append(opts, cep.WithBaseURL(lc.BaseURL))
	}
	if lc.TimeoutSecs > 0 {
		opts = append(opts, cep.WithTimeout(time.Duration(lc.TimeoutSecs)*time.Second))
	}
	if lc.UserAgent != "" {
		opts = append(opts, cep.WithUserAgent(lc.UserAgent))
	}
	if lc.MaxAttempts > 1 {
		opts = append(opts, cep.WithRetry(resilience.Attempts(lc.MaxAttempts)))
	}
	return cep.NewClient(opts...)
}
