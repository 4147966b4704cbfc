package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/salesforce"
)

// crmAdapter pulls what the CRM already knows: the account, its top-level
// parent, known contacts, and open pipeline. CRM content is vendor data;
// the prospect cannot verify it, so none of it is citable.
type crmAdapter struct {
	client salesforce.Client
	now    func() time.Time
}

// NewCRM wraps a Salesforce client as a research provider.
func NewCRM(client salesforce.Client) Adapter {
	return &crmAdapter{client: client, now: time.Now}
}

func (a *crmAdapter) Name() string { return "salesforce" }

func (a *crmAdapter) SourceType() model.SourceType { return model.SourceVendorData }

func (a *crmAdapter) Fetch(ctx context.Context, identity model.Identity) (*Payload, error) {
	payload := &Payload{Provider: a.Name(), SourceType: a.SourceType(), FetchedAt: a.now()}

	account, err := a.findAccount(ctx, identity)
	if err != nil {
		return nil, Classify(a.Name(), err)
	}
	if account == nil {
		// Not being in the CRM yet is the normal state for cold outreach.
		zap.L().Debug("no CRM account for identity",
			zap.String("company", identity.Company),
			zap.String("domain", identity.Domain),
		)
		return payload, nil
	}

	primary, err := salesforce.FindPrimaryAccount(ctx, a.client, account)
	if err != nil {
		return nil, Classify(a.Name(), err)
	}

	payload.Company = &CompanyData{
		Name:      account.Name,
		Domain:    identity.Domain,
		Industry:  account.Industry,
		Employees: account.NumberOfEmployees,
		City:      account.BillingCity,
		State:     account.BillingState,
		CRMID:     account.ID,
		Account:   primary.Name,
		Summary:   account.Description,
	}

	contacts, err := salesforce.FindContactsByAccountID(ctx, a.client, account.ID)
	if err != nil {
		return nil, Classify(a.Name(), err)
	}
	for _, c := range contacts {
		if !strings.EqualFold(c.FullName(), identity.Contact) {
			continue
		}
		payload.Contact = &ContactData{
			Name:  c.FullName(),
			Title: c.Title,
			Email: c.Email,
		}
		break
	}

	opps, err := salesforce.OpenOpportunitiesForAccount(ctx, a.client, account.ID)
	if err != nil {
		return nil, Classify(a.Name(), err)
	}
	for _, o := range opps {
		text := fmt.Sprintf("Open opportunity %q at stage %s", o.Name, o.StageName)
		if o.CloseDate != "" {
			text += ", closing " + o.CloseDate
		}
		payload.Items = append(payload.Items, Item{
			Title: "CRM pipeline",
			Text:  text + ".",
		})
	}

	return payload, nil
}

// findAccount prefers a caller-supplied CRM id hint over the website match.
func (a *crmAdapter) findAccount(ctx context.Context, identity model.Identity) (*salesforce.Account, error) {
	if id := identity.Hints[model.AliasCRMID]; id != "" {
		return salesforce.FindAccountByID(ctx, a.client, id)
	}
	if identity.Domain == "" {
		return nil, nil
	}
	return salesforce.FindAccountByWebsite(ctx, a.client, "%"+identity.Domain+"%")
}
