// Package cli implements the explorer command line tool.
package cli

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dataset-explorer/backend/internal/catalog"
	"github.com/dataset-explorer/backend/internal/config"
	"github.com/dataset-explorer/backend/internal/dataset"
	"github.com/dataset-explorer/backend/internal/explorer"
	"github.com/dataset-explorer/backend/internal/profile"
	"github.com/dataset-explorer/backend/internal/remote"
)

type options struct {
	remoteQuery    string
	remoteAnalysis string
	timeout        time.Duration
	logLevel       string
	seed           uint64
}

// NewRootCmd builds the explorer command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "explorer",
		Short: "Search and profile tabular datasets",
		Long: `Explore CSV, JSON and HTML-table datasets from the command line.

Questions are answered by ranking records against the query with
term-frequency cosine similarity. When a remote query or analysis
service is given, it is tried first and the local engine is used
whenever it fails.

Example:
  explorer search olympics.csv "gold medals norway"
  explorer profile --remote-analysis http://localhost:5000/analyze sdg.json`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.remoteQuery, "remote-query", "", "URL of the remote query service")
	flags.StringVar(&opts.remoteAnalysis, "remote-analysis", "", "URL of the remote analysis service")
	flags.DurationVar(&opts.timeout, "timeout", 5*time.Second, "timeout for remote calls")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.Uint64Var(&opts.seed, "seed", 0, "seed for placeholder chart data (0 uses the clock)")

	root.AddCommand(newProfileCmd(opts), newSearchCmd(opts), newFieldsCmd(opts))
	return root
}

func (o *options) logger(cmd *cobra.Command) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger.WithField("service", "explorer-cli"), nil
}

func (o *options) profiler() *profile.Profiler {
	if o.seed != 0 {
		return profile.New(profile.WithSeed(o.seed))
	}
	return profile.New()
}

// open loads a dataset file and builds its session.
func (o *options) open(path string) (*explorer.Session, error) {
	records, err := dataset.LoadFile(path)
	if err != nil {
		return nil, err
	}
	ds := dataset.New(catalog.DatasetID(path), "", records)
	ds.Source = path
	return explorer.NewSession(ds, o.profiler()), nil
}

func (o *options) explorer(log *logrus.Entry, topN int) *explorer.Explorer {
	client := remote.NewClient(config.RemoteConfig{
		QueryURL:    o.remoteQuery,
		AnalysisURL: o.remoteAnalysis,
		Timeout:     o.timeout,
	}, log.WithField("component", "remote"))

	opts := explorer.DefaultOptions()
	opts.RemoteTimeout = o.timeout
	if topN >= 0 {
		opts.TopN = topN
	}
	return explorer.New(client, client, nil, opts, log.WithField("component", "explorer"))
}
