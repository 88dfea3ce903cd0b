package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/lk2023060901/chunkjson/internal/conf"
	"github.com/lk2023060901/chunkjson/internal/pkg/chunkquery"
	"github.com/lk2023060901/chunkjson/internal/pkg/database"
	"github.com/lk2023060901/chunkjson/internal/pkg/logger"
	"github.com/lk2023060901/chunkjson/internal/widget/biz"
	widgetdata "github.com/lk2023060901/chunkjson/internal/widget/data"
	"github.com/lk2023060901/chunkjson/internal/widget/models"
)

// errCheckFailed marks a completed run whose result is negative: a failed
// probe check or an export that is not valid JSON.
var errCheckFailed = errors.New("check failed")

type globalOptions struct {
	configFile string
	envFile    string
	driver     string
	sqlitePath string
	logLevel   string
}

// env is what every subcommand works with.
type env struct {
	cfg    *conf.Config
	log    *logger.Logger
	db     *database.DB
	source *chunkquery.Source
}

// NewRootCmd builds the chunkprobe command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "chunkprobe",
		Short: "Check chunked JSON reassembly against a database",
		Long: `chunkprobe aggregates a widgets table into one JSON document with the
database's own JSON functions, splits it into fixed-size rows the way
SQL Server FOR JSON does, and verifies the rows only rebuild a valid
document when concatenated in order.

Configuration comes from --config, CHUNKJSON_* variables and .env.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (defaults and environment when empty)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	flags.StringVar(&opts.driver, "driver", "", "override database.driver: postgres, mysql, sqlite")
	flags.StringVar(&opts.sqlitePath, "sqlite", "", "sqlite database file or :memory:, implies --driver sqlite")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level on stderr")

	cmd.AddCommand(newRunCmd(opts), newExportCmd(opts), newHistoryCmd(opts))
	return cmd
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		probeCfg biz.ProbeConfig
		record   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the chunked and singular scenarios and print a JSON report",
		Long: `Run seeds a scratch copy of the widgets table for each scenario and drops
it afterwards; the widgets table itself is left alone. The chunked scenario expects more
than one fragment, full-length fragments except the last, an invalid
document without the last fragment or in reverse order, and a valid one
with every fragment in order. The singular scenario expects one fragment
that decodes to every widget.

Exits with status 1 when a check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, closeEnv, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer closeEnv()

			if probeCfg.FragmentLength <= 0 {
				probeCfg.FragmentLength = e.cfg.Export.FragmentLength
			}
			probe := biz.NewProbe(widgetdata.NewWidgetRepo(e.db), e.source, probeCfg, e.log)
			if record {
				probe.WithHistory(widgetdata.NewProbeRunRepo(e.db))
			}

			report, err := probe.Run(cmd.Context())
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Passed {
				return errCheckFailed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&probeCfg.ChunkedWidgets, "chunked", 0, "widgets in the chunked scenario")
	flags.IntVar(&probeCfg.SingularWidgets, "singular", 0, "widgets in the singular scenario")
	flags.IntVar(&probeCfg.FragmentLength, "length", 0, "fragment length (default export.fragment_length)")
	flags.BoolVar(&record, "record", true, "store the report in probe_runs")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		exportOpts biz.ExportOptions
		seed       int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the reassembled widgets document",
		Long: `Export runs the widgets query once and writes the reassembled text to
stdout. Exits with status 1 when the text is not valid JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, closeEnv, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer closeEnv()

			ctx := cmd.Context()
			if err := models.MigrateWithLog(ctx, e.db, e.log); err != nil {
				return err
			}
			if seed > 0 {
				uc := biz.NewWidgetUseCase(widgetdata.NewWidgetRepo(e.db), nil, nil, e.log)
				if _, err := uc.Seed(ctx, seed); err != nil {
					return err
				}
			}

			uc := biz.NewExportUseCase(e.source, nil, nil, biz.ExportConfig{
				FragmentLength: e.cfg.Export.FragmentLength,
				TerminalPolicy: e.cfg.Export.TerminalPolicy,
			}, e.log)
			res, err := uc.Export(ctx, exportOpts)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.Result.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "fragments=%d bytes=%d valid=%t\n",
				res.Result.FragmentCount, len(res.Result.Text), res.Result.IsValidJSON)
			if !res.Result.IsValidJSON {
				return errCheckFailed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&exportOpts.Chunked, "chunked", true, "split the document into fragments")
	flags.IntVar(&exportOpts.FragmentLength, "length", 0, "fragment length (default export.fragment_length)")
	flags.StringVar(&exportOpts.Terminal, "terminal", "", "terminal policy: keep, drop, drop_blank")
	flags.IntVar(&seed, "seed", 0, "insert this many widgets first")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored probe reports, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, closeEnv, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer closeEnv()

			if err := models.AutoMigrate(cmd.Context(), e.db); err != nil {
				return err
			}
			runs, err := widgetdata.NewProbeRunRepo(e.db).Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}

func openEnv(opts *globalOptions) (*env, func(), error) {
	if err := conf.LoadDotEnv(opts.envFile); err != nil {
		return nil, nil, err
	}

	log, err := logger.CLI(opts.logLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	cfg, err := conf.LoadConfig(opts.configFile)
	if err != nil {
		return nil, nil, err
	}
	dbConfig := cfg.Database
	if opts.driver != "" {
		dbConfig.Driver = opts.driver
	}
	if opts.sqlitePath != "" {
		dbConfig.Driver = database.DriverSQLite
		dbConfig.Path = opts.sqlitePath
	}
	if dbConfig.Driver == database.DriverSQLite && dbConfig.Path == database.MemoryPath {
		mem := database.MemoryConfig()
		dbConfig.MaxOpenConns, dbConfig.MaxIdleConns = mem.MaxOpenConns, mem.MaxIdleConns
		dbConfig.ConnMaxLifetime, dbConfig.ConnMaxIdleTime = 0, 0
	}

	db, err := database.New(&dbConfig, log)
	if err != nil {
		return nil, nil, err
	}
	source, err := chunkquery.SourceFor(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	closeEnv := func() {
		_ = db.Close()
		_ = log.Sync()
	}
	return &env{cfg: cfg, log: log, db: db, source: source}, closeEnv, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
