package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.temporal.io/sdk/client"

	"github.com/leowmjw/go-health-timeline/internal/config"
	"github.com/leowmjw/go-health-timeline/pkg/export"
	"github.com/leowmjw/go-health-timeline/pkg/hcl"
	"github.com/leowmjw/go-health-timeline/pkg/temporal"
	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

const (
	modeLocal  = "local"
	modeSubmit = "submit"
)

type options struct {
	mode         string
	configPath   string
	exportPath   string
	year         string
	outputDir    string
	listTypes    string
	displayJSON  bool
	temporalAddr string
	namespace    string
	taskQueue    string
	logLevel     string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := config.NewLogger(opts.logLevel)
	if err := run(context.Background(), opts, os.Stdout, logger); err != nil {
		logger.Error("healthpipe failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, cfg config.Config) (options, error) {
	var opts options
	fs := flag.NewFlagSet("healthpipe", flag.ContinueOnError)
	fs.StringVar(&opts.mode, "mode", modeLocal, "Operation mode: 'local' or 'submit'")
	fs.StringVar(&opts.configPath, "config", "", "Path to a pipeline HCL file or directory")
	fs.StringVar(&opts.exportPath, "export", "", "Path to export.xml (local mode; defaults to the config's export_id)")
	fs.StringVar(&opts.year, "year", "", "Target year when no config is given")
	fs.StringVar(&opts.outputDir, "out", cfg.OutputDir, "Output directory for json, csv and statistics files")
	fs.StringVar(&opts.listTypes, "list-types", "", "Write the export's data types to this file and exit")
	fs.BoolVar(&opts.displayJSON, "json", false, "Display the report as JSON")
	fs.StringVar(&opts.temporalAddr, "address", cfg.TemporalAddr, "Address of Temporal server")
	fs.StringVar(&opts.namespace, "namespace", cfg.Namespace, "Temporal namespace")
	fs.StringVar(&opts.taskQueue, "task-queue", cfg.TaskQueue, "Temporal task queue")
	fs.StringVar(&opts.logLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if opts.mode != modeLocal && opts.mode != modeSubmit {
		return options{}, fmt.Errorf("mode must be either %q or %q", modeLocal, modeSubmit)
	}
	if opts.mode == modeSubmit && opts.configPath == "" {
		return options{}, errors.New("submit mode requires -config")
	}
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer, logger *slog.Logger) error {
	if opts.listTypes != "" {
		exportPath := opts.exportPath
		if exportPath == "" && opts.configPath != "" {
			request, err := hcl.ParseHCLFile(opts.configPath)
			if err != nil {
				return err
			}
			exportPath = request.ExportID
		}
		return listTypes(exportPath, opts.listTypes, logger)
	}

	request, err := loadRequest(opts)
	if err != nil {
		return err
	}

	if opts.mode == modeSubmit {
		c, err := client.Dial(client.Options{
			HostPort:  opts.temporalAddr,
			Namespace: opts.namespace,
		})
		if err != nil {
			return fmt.Errorf("unable to create Temporal client: %w", err)
		}
		defer c.Close()

		result, err := submit(ctx, c, opts.taskQueue, request, logger)
		if err != nil {
			return err
		}
		return displayReport(out, &result.Report, opts.displayJSON)
	}

	report, err := runLocal(ctx, opts, request, logger)
	if err != nil {
		return err
	}
	return displayReport(out, report, opts.displayJSON)
}

// loadRequest reads the pipeline config, or builds the default plan for -year
func loadRequest(opts options) (*temporal.PipelineRequest, error) {
	if opts.configPath != "" {
		request, err := hcl.ParseHCLFile(opts.configPath)
		if err != nil {
			return nil, err
		}
		if opts.exportPath != "" {
			request.ExportID = opts.exportPath
		}
		return request, nil
	}

	if opts.exportPath == "" || opts.year == "" {
		return nil, errors.New("either -config or both -export and -year are required")
	}
	request := &temporal.PipelineRequest{
		ExportID: opts.exportPath,
		Year:     opts.year,
		Plan:     timeline.DefaultPlan(),
	}
	request.Plan.Correlate = []timeline.CorrelationPair{{
		Name: "steps_vs_heart_rate",
		A:    timeline.StepsOutput,
		B:    timeline.HeartRateOutput,
	}}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	return request, nil
}

func runLocal(ctx context.Context, opts options, request *temporal.PipelineRequest, logger *slog.Logger) (*timeline.Report, error) {
	registry, err := timeline.DefaultRegistry(request.Year)
	if err != nil {
		return nil, err
	}

	logger.Info("Reading export", "path", request.ExportID)
	records, err := export.ReadFile(request.ExportID)
	if err != nil {
		return nil, err
	}
	logger.Info("Export loaded", "records", len(records))

	pipeline := timeline.NewPipeline(logger, registry, export.NewFileSink(opts.outputDir, logger))
	return pipeline.Run(ctx, records, request.Plan)
}

// submit runs the pipeline as a workflow and waits for it
func submit(ctx context.Context, c client.Client, taskQueue string, request *temporal.PipelineRequest, logger *slog.Logger) (*temporal.PipelineResult, error) {
	startOptions := client.StartWorkflowOptions{
		ID:        temporal.GeneratePipelineWorkflowID(request.ExportID),
		TaskQueue: taskQueue,
	}

	logger.Info("Submitting pipeline", "export_id", request.ExportID, "workflow_id", startOptions.ID)

	run, err := c.ExecuteWorkflow(ctx, startOptions, temporal.PipelineWorkflow, *request)
	if err != nil {
		return nil, fmt.Errorf("failed to execute pipeline workflow: %w", err)
	}

	var result temporal.PipelineResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to get pipeline result: %w", err)
	}
	return &result, nil
}

func listTypes(exportPath, target string, logger *slog.Logger) error {
	if exportPath == "" {
		return errors.New("-list-types requires -export or a config with export_id")
	}
	records, err := export.ReadFile(exportPath)
	if err != nil {
		return err
	}
	types := timeline.DataTypes(records)
	logger.Info("Writing data types", "count", len(types), "path", target)
	return os.WriteFile(target, []byte(strings.Join(types, ", ")), 0644)
}

// displayReport shows the report in human-readable or JSON format
func displayReport(w io.Writer, report *timeline.Report, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintln(w, "Extractions:")
	for _, e := range report.Extractions {
		fmt.Fprintf(w, "  %s: %d records over %d dates", e.Category, e.Kept, e.Dates)
		if len(e.Malformed) > 0 {
			fmt.Fprintf(w, " (%d malformed skipped)", len(e.Malformed))
		}
		fmt.Fprintln(w)
	}

	if len(report.Window.Dates) > 0 {
		fmt.Fprintf(w, "Window: %s\n", strings.Join(report.Window.Dates, ", "))
	}

	for _, a := range report.Aggregations {
		fmt.Fprintf(w, "Aggregated %s: %d rows, %d hourly buckets", a.Category, a.Rows, a.Buckets)
		if a.StdDev != nil {
			fmt.Fprintf(w, ", SD %.4f", *a.StdDev)
		}
		fmt.Fprintln(w)
	}

	for _, c := range report.Correlations {
		fmt.Fprintf(w, "Correlation %s (%s vs %s):\n", c.Name, c.A, c.B)
		if c.Result == nil {
			fmt.Fprintf(w, "  undefined: %s\n", c.Error)
			continue
		}
		fmt.Fprintf(w, "  Spearman's correlation coefficient: %.4f\n", c.Result.Coefficient)
		fmt.Fprintf(w, "  P-value: %.4f over %d hourly pairs\n", c.Result.PValue, c.Result.Pairs)
		if c.Positive {
			fmt.Fprintln(w, "  The correlation is positive.")
		} else {
			fmt.Fprintln(w, "  The correlation is negative.")
		}
		if c.Significant {
			fmt.Fprintln(w, "  The correlation is statistically significant.")
		} else {
			fmt.Fprintln(w, "  The correlation is not statistically significant.")
		}
	}
	return nil
}
