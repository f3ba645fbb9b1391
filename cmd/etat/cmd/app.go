package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"etat-statement-service/cmd/etat/config"
	"etat-statement-service/internal/metrics"
	"etat-statement-service/internal/reporter"
	"etat-statement-service/internal/statement"
	"etat-statement-service/pkg/errors"
	"etat-statement-service/pkg/logger"
)

// app holds everything a statement command needs for one run
type app struct {
	settings *config.Settings
	engine   *statement.Engine
	reporter *reporter.SafeReportGenerator
	metrics  *metrics.Metrics
	logger   logger.Logger
}

func newApp(v *viper.Viper) (*app, error) {
	settings, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	logConfig, err := config.CreateLoggerConfig(settings)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return nil, err
	}
	logger.SetGlobalLogger(log)

	loc, err := settings.Location()
	if err != nil {
		return nil, err
	}

	sources, err := config.CreateSources(settings, loc, nil)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	engine, err := statement.NewEngine(sources, config.CreateEngineConfig(settings, loc), m)
	if err != nil {
		return nil, err
	}

	generator, err := reporter.NewSafeReportGenerator(config.CreateReportConfig(settings.OutputFormat), log)
	if err != nil {
		return nil, err
	}

	return &app{
		settings: settings,
		engine:   engine,
		reporter: generator,
		metrics:  m,
		logger:   log.WithComponent("cli"),
	}, nil
}

// run computes req, writes the report and dumps metrics when asked to.
// With strict set, a statement with unavailable sections fails the run
// after its report was written.
func (a *app) run(ctx context.Context, req statement.Request, stdout io.Writer, strict bool) error {
	result, err := a.engine.Compute(ctx, req)
	if err != nil {
		return err
	}

	if a.settings.OutputFile != "" {
		written, err := a.reporter.WriteReportFile(result, a.settings.OutputFile)
		if err != nil {
			return err
		}
		if a.settings.Verbose {
			fmt.Fprintf(os.Stderr, "Statement written to %s\n", written)
		}
	} else if err := a.reporter.GenerateReportSafely(result, stdout); err != nil {
		return err
	}

	if a.settings.MetricsFile != "" {
		if err := a.metrics.WriteFile(a.settings.MetricsFile); err != nil {
			a.logger.WithError(err).Warn("Could not write metrics file")
		}
	}

	if !result.Partial() {
		return nil
	}

	causes := make([]error, 0, len(result.SectionErrors))
	for _, se := range result.SectionErrors {
		causes = append(causes, se)
	}
	a.logger.WithField("sections", errors.Join(causes)).Warn("Statement is partial")

	if strict {
		return result.SectionErrors[0].Err
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
