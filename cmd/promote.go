package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/artifact"
	"github.com/sells-group/outreach-cli/internal/gate"
	"github.com/sells-group/outreach-cli/internal/model"
	sfpkg "github.com/sells-group/outreach-cli/pkg/salesforce"
)

var (
	promoteForce bool
	promoteNoCRM bool
)

var promoteCmd = &cobra.Command{
	Use:   "promote <artifact-dir>",
	Short: "Move an approved draft into the active-accounts workspace",
	Long:  "Re-checks the promotion gate, copies the artifact into the active-accounts tree, links it to its Salesforce account when one matches, and logs an outreach task on that account. Exit code 2 means the gate blocked it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("promote"); err != nil {
			return err
		}
		dir := args[0]

		brief, err := artifact.ReadBrief(dir)
		if err != nil {
			return eris.Wrap(err, "promote")
		}

		decision := gate.Promotion.Evaluate(brief, promoteForce)
		if decision.Blocked() {
			if err := writeJSON(os.Stdout, decision); err != nil {
				return err
			}
			return exitWith(exitFallback, "gate blocked: "+decision.ReasonCode)
		}

		var link *crmLink
		if !promoteNoCRM {
			link, err = resolveCRMLink(ctx, brief)
			if err != nil {
				return eris.Wrap(err, "promote")
			}
		}

		account := ""
		if link != nil {
			account = link.AccountName
		}
		dest, err := artifact.NewWriter(cfg.Render.OutRoot).Promote(dir, cfg.Render.TargetRoot, account)
		if err != nil {
			return eris.Wrap(err, "promote")
		}

		if link != nil {
			logPromotionTask(ctx, link, brief, dest)
		}

		zap.L().Info("draft promoted",
			zap.String("from", dir),
			zap.String("to", dest),
			zap.String("account", account),
		)
		return writeJSON(os.Stdout, promoteOutput{Gate: decision, Dest: dest, Account: account})
	},
}

func init() {
	promoteCmd.Flags().BoolVar(&promoteForce, "force", false, "clear the review-required check after a human review")
	promoteCmd.Flags().BoolVar(&promoteNoCRM, "no-crm", false, "skip the Salesforce account lookup and task log")
	rootCmd.AddCommand(promoteCmd)
}

type promoteOutput struct {
	Gate    model.GateDecision `json:"gate"`
	Dest    string             `json:"dest"`
	Account string             `json:"account,omitempty"`
}

// crmLink is a matched Salesforce account, plus the contact on it whose name
// matches the brief's contact, when one does.
type crmLink struct {
	Client      sfpkg.Client
	AccountID   string
	AccountName string
	ContactID   string
}

// resolveCRMLink matches the brief to a Salesforce account: by CRM id when
// research already pinned one, otherwise by website. Nothing matching is
// normal for cold outreach and returns nil without error.
func resolveCRMLink(ctx context.Context, brief *model.ProspectBrief) (*crmLink, error) {
	client, err := initSalesforce()
	if err != nil {
		return nil, err
	}

	var acct *sfpkg.Account
	if brief.Company.CRMID != "" {
		acct, err = sfpkg.FindAccountByID(ctx, client, brief.Company.CRMID)
	} else if brief.Company.Domain != "" {
		acct, err = sfpkg.FindAccountByWebsite(ctx, client, brief.Company.Domain)
	}
	if err != nil {
		return nil, err
	}
	if acct == nil {
		zap.L().Info("no CRM account matched, promoting without account link",
			zap.String("company", brief.Company.Name))
		return nil, nil
	}

	primary, err := sfpkg.FindPrimaryAccount(ctx, client, acct)
	if err != nil {
		return nil, err
	}

	link := &crmLink{Client: client, AccountID: primary.ID, AccountName: primary.Name}
	contacts, err := sfpkg.FindContactsByAccountID(ctx, client, primary.ID)
	if err != nil {
		zap.L().Warn("CRM contact lookup failed", zap.Error(err))
		return link, nil
	}
	for _, c := range contacts {
		if strings.EqualFold(c.FullName(), brief.Contact.Name) {
			link.ContactID = c.ID
			break
		}
	}
	return link, nil
}

// logPromotionTask records the promotion on the matched account. A logging
// failure does not unwind the promotion; the artifact move already happened.
func logPromotionTask(ctx context.Context, link *crmLink, brief *model.ProspectBrief, dest string) {
	subject := fmt.Sprintf("Outreach draft promoted: %s", brief.Contact.Name)
	description := fmt.Sprintf("Draft for %s (%s persona, %s confidence) promoted to %s.",
		brief.Contact.Name, brief.Persona, brief.Confidence, dest)

	if _, err := sfpkg.LogOutreachTask(ctx, link.Client, link.AccountID, link.ContactID, subject, description); err != nil {
		zap.L().Warn("CRM task log failed", zap.Error(err))
	}
}
