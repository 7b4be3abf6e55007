package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dataset-explorer/backend/internal/dataset"
	"github.com/dataset-explorer/backend/internal/profile"
	"github.com/dataset-explorer/backend/internal/search"
)

func newProfileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <file>",
		Short: "Print the statistical profile of a dataset as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger(cmd)
			if err != nil {
				return err
			}
			sess, err := opts.open(args[0])
			if err != nil {
				return err
			}

			analysis := opts.explorer(log, -1).Analyze(cmd.Context(), sess)
			out, err := json.MarshalIndent(struct {
				*profile.DatasetProfile
				Source string `json:"source"`
			}{analysis.Profile, string(analysis.Source)}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newSearchCmd(opts *options) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "search <file> <query>",
		Short: "Answer a question by ranking the records of a dataset",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger(cmd)
			if err != nil {
				return err
			}
			sess, err := opts.open(args[0])
			if err != nil {
				return err
			}

			ans, err := opts.explorer(log, top).Ask(cmd.Context(), sess, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Answer (%s):\n%s\n", ans.Source, ans.Response)
			if len(ans.Matches) > 0 {
				fmt.Fprintf(w, "\nMatches on field %q:\n", sess.Index.TextField)
				for i, m := range ans.Matches {
					fmt.Fprintf(w, "  %d. [%.4f] #%d %s\n", i+1, m.Score, m.RecordIndex, snippet(m))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 5, "number of ranked records to show")
	return cmd
}

func newFieldsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fields <file>",
		Short: "Show the fields of a dataset and how the engine uses them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.open(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			records := sess.Dataset.Records
			fmt.Fprintf(w, "Dataset: %s (%d records)\n", sess.Dataset.ID, len(records))
			if len(records) == 0 {
				return nil
			}

			fields := records[0].Fields()
			sample := records
			if len(sample) > profile.MaxTrendPoints {
				sample = sample[:profile.MaxTrendPoints]
			}
			trendField, _ := profile.SelectTrendField(sample, fields)
			distField, _ := profile.SelectDistributionField(records, fields)

			for _, name := range fields {
				var roles []string
				if name == sess.Index.TextField {
					roles = append(roles, "text")
				}
				if _, ok := sess.Profile.Summary.DataTypes[name]; ok {
					roles = append(roles, "numeric")
				}
				if name == trendField {
					roles = append(roles, "trend")
				}
				if name == distField {
					roles = append(roles, "distribution")
				}
				v, _ := records[0].Get(name)
				fmt.Fprintf(w, "  %-24s %-28s e.g. %s\n", name, strings.Join(roles, ","), dataset.FormatValue(v))
			}
			fmt.Fprintf(w, "Vocabulary: %d terms\n", sess.Index.Vocabulary.Len())
			return nil
		},
	}
}

func snippet(m search.SimilarityResult) string {
	runes := []rune(m.Text)
	if len(runes) > 80 {
		return string(runes[:77]) + "..."
	}
	return m.Text
}
