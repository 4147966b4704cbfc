package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/artifact"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var (
	statusRoot      string
	statusBy        string
	statusRuns      bool
	statusRunState  string
	statusRunsLimit int
	statusJSON      bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the state of the artifact tree or recent runs",
	Long:  "Scans the artifact tree and prints where every prospect sits in the lifecycle, grouped on request. With --runs it lists recent research runs from the store instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if statusRuns {
			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			filter := store.RunFilter{Status: model.RunStatus(statusRunState), Limit: statusRunsLimit}
			runs, err := st.ListRuns(ctx, filter)
			if err != nil {
				return eris.Wrap(err, "status: list runs")
			}
			if statusJSON {
				return writeJSON(os.Stdout, runs)
			}
			printRuns(os.Stdout, runs)
			return nil
		}

		root := statusRoot
		if root == "" {
			root = cfg.Artifacts.Root
		}
		arts, err := artifact.Scan(root)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if statusJSON {
			return writeJSON(os.Stdout, arts)
		}

		switch statusBy {
		case "":
			printArtifacts(os.Stdout, arts)
		case "company":
			printGrouped(os.Stdout, artifact.GroupByCompany(arts))
		case "persona":
			printGrouped(os.Stdout, artifact.GroupByPersona(arts))
		case "date":
			printGrouped(os.Stdout, artifact.GroupByDate(arts))
		case "account":
			printGrouped(os.Stdout, artifact.GroupByAccount(arts))
		default:
			return eris.Errorf("status: unknown grouping %q (company, persona, date, account)", statusBy)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRoot, "root", "", "artifact root to scan (default from config)")
	statusCmd.Flags().StringVar(&statusBy, "by", "", "group by: company, persona, date, account")
	statusCmd.Flags().BoolVar(&statusRuns, "runs", false, "list recent research runs instead of artifacts")
	statusCmd.Flags().StringVar(&statusRunState, "run-status", "", "filter runs by status")
	statusCmd.Flags().IntVar(&statusRunsLimit, "limit", 50, "max runs to list")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "emit JSON instead of a table")
	rootCmd.AddCommand(statusCmd)
}

func printArtifacts(out io.Writer, arts []model.ProspectArtifact) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPANY\tCONTACT\tSTATUS\tCONFIDENCE\tRENDERED\tNOTE")
	for _, a := range arts {
		note := a.Reason
		if note == "" && a.Account != "" {
			note = a.Account
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.Company, a.Contact, a.Status, a.Confidence,
			a.RenderedAt.Format("2006-01-02"), note)
	}
	_ = w.Flush()

	counts := artifact.CountByStatus(arts)
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	fmt.Fprintf(out, "\n%d artifacts", len(arts))
	for _, s := range statuses {
		fmt.Fprintf(out, "  %s=%d", s, counts[model.ProspectStatus(s)])
	}
	fmt.Fprintln(out)
}

func printGrouped(out io.Writer, groups map[string][]model.ProspectArtifact) {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(out, "%s (%d)\n", k, len(groups[k]))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, a := range groups[k] {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", a.Company, a.Contact, a.Status, a.Confidence)
		}
		_ = w.Flush()
	}
}

func printRuns(out io.Writer, runs []model.ResearchRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCOMPANY\tCONTACT\tSTATUS\tUPDATED\tNOTE")
	for _, r := range runs {
		note := ""
		if r.Summary != nil {
			switch {
			case r.Summary.Error != "":
				note = r.Summary.Error
			case r.Summary.GateReason != "":
				note = r.Summary.GateReason
			case r.Summary.RenderStatus != "":
				note = string(r.Summary.RenderStatus)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID), r.Identity.Company, r.Identity.Contact,
			r.Status, r.UpdatedAt.Format("2006-01-02 15:04"), note)
	}
	_ = w.Flush()
}

// truncateID shortens a uuid for table display.
func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
