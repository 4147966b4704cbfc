package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/entity"
	"github.com/sells-group/outreach-cli/internal/vendorimport"
)

var (
	importSource string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Seed the cache from a vendor snapshot",
	Long:  "Downloads a vendor snapshot export (CSV, XLSX, or either inside a ZIP, over HTTPS or FTP), parses it, and seeds vendor snapshots and aliases for every company in it. With no --source the configured FTP feed is used.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("import"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		importer := vendorimport.New(entity.NewResolver(st), entity.NewCache(st, cfg.Cache), cfg.Vendor)
		report, err := importer.Run(ctx, importSource, importDryRun)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import: finished",
			zap.Int("rows", report.RowsRead),
			zap.Int("companies", report.Companies),
			zap.Int("created", report.Created),
			zap.Bool("dry_run", report.DryRun),
		)
		return writeJSON(os.Stdout, report)
	},
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", "", "snapshot path or URL (default: configured FTP feed)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "parse and report only; no registry or cache writes")
	rootCmd.AddCommand(importCmd)
}
