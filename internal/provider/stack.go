package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/peopledata"
)

// stackAdapter enriches the identity from the contact-data vendor: company
// firmographics with HQ coordinates for territory assignment, plus the
// contact's verified title and work email. All of it is vendor data.
type stackAdapter struct {
	client peopledata.Client
	now    func() time.Time
}

// NewStack wraps a People Data Labs client as a research provider.
func NewStack(client peopledata.Client) Adapter {
	return &stackAdapter{client: client, now: time.Now}
}

func (a *stackAdapter) Name() string { return "peopledata" }

func (a *stackAdapter) SourceType() model.SourceType { return model.SourceVendorData }

func (a *stackAdapter) Fetch(ctx context.Context, identity model.Identity) (*Payload, error) {
	if identity.Company == "" && identity.Domain == "" {
		return nil, NewFault(a.Name(), model.FaultOther, eris.New("peopledata: identity has no company name or domain"))
	}

	payload := &Payload{Provider: a.Name(), SourceType: a.SourceType(), FetchedAt: a.now()}

	companyResp, err := a.client.EnrichCompany(ctx, peopledata.CompanyParams{
		Website: identity.Domain,
		Name:    identity.Company,
	})
	if err != nil {
		return nil, Classify(a.Name(), err)
	}
	if companyResp.Found() {
		payload.Company = &CompanyData{
			Name:      companyResp.Name,
			Domain:    identity.Domain,
			Industry:  companyResp.Industry,
			Employees: companyResp.EmployeeCount,
			City:      companyResp.Location.Locality,
			State:     companyResp.Location.Region,
			Latitude:  companyResp.Location.Latitude,
			Longitude: companyResp.Location.Longitude,
			Summary:   companyResp.Summary,
		}
		if len(companyResp.Tags) > 0 {
			payload.Items = append(payload.Items, Item{
				Title: "Vendor company profile",
				Text:  fmt.Sprintf("%s is tagged %s in vendor data.", companyResp.Name, strings.Join(companyResp.Tags, ", ")),
			})
		}
	}

	if identity.Contact == "" {
		return payload, nil
	}

	personResp, err := a.client.EnrichPerson(ctx, peopledata.PersonParams{
		Name:    identity.Contact,
		Company: identity.Company,
	})
	if err != nil {
		// The company half already landed; losing the person half degrades
		// the payload, it does not void it.
		zap.L().Warn("person enrichment failed",
			zap.String("contact", identity.Contact),
			zap.Error(err),
		)
		return payload, nil
	}
	if personResp.Found() {
		payload.Contact = &ContactData{
			Name:     personResp.Data.FullName,
			Title:    personResp.Data.JobTitle,
			Email:    personResp.Data.WorkEmail,
			LinkedIn: personResp.Data.LinkedInURL,
			Location: personResp.Data.Location,
		}
	}

	return payload, nil
}
