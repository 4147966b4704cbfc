package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "outreach-cli",
	Short: "Outbound research and drafting pipeline",
	Long:  "Researches prospects across SEC filings, news, company sites, vendor data, and the CRM, synthesizes confidence-scored briefs, and gates automated outreach drafting.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// Process exit codes. Wrapper scripts branch on these, so they are contract:
// 0 full success, 1 hard error, 2 a degraded outcome (fallback draft, gate
// block, zero sources), 3 research too thin to draft at all.
const (
	exitFallback      = 2
	exitNeedsResearch = 3
)

// exitError carries a non-default exit code out through cobra. Commands
// return it like any error; main unwraps the code.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitWith(code int, msg string) error {
	return &exitError{code: code, msg: msg}
}

// renderExit maps a render outcome onto the exit-code contract.
func renderExit(status model.RenderStatus) error {
	switch status {
	case model.RenderSuccess:
		return nil
	case model.RenderFallback:
		return exitWith(exitFallback, "draft fell back to the canned template; edit before sending")
	case model.RenderNeedsMoreResearch:
		return exitWith(exitNeedsResearch, "research too thin to draft")
	default:
		return errors.New("render failed")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var xe *exitError
		if errors.As(err, &xe) {
			os.Exit(xe.code)
		}
		os.Exit(1)
	}
}
