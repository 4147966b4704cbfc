package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Account represents a Salesforce Account record.
type Account struct {
	ID                string  `json:"Id" salesforce:"Id"`
	Name              string  `json:"Name" salesforce:"Name"`
	ParentID          string  `json:"ParentId" salesforce:"ParentId"`
	Website           string  `json:"Website" salesforce:"Website"`
	Industry          string  `json:"Industry" salesforce:"Industry"`
	Description       string  `json:"Description" salesforce:"Description"`
	BillingCity       string  `json:"BillingCity" salesforce:"BillingCity"`
	BillingState      string  `json:"BillingState" salesforce:"BillingState"`
	BillingCountry    string  `json:"BillingCountry" salesforce:"BillingCountry"`
	BillingPostalCode string  `json:"BillingPostalCode" salesforce:"BillingPostalCode"`
	Phone             string  `json:"Phone" salesforce:"Phone"`
	NumberOfEmployees int     `json:"NumberOfEmployees" salesforce:"NumberOfEmployees"`
	AnnualRevenue     float64 `json:"AnnualRevenue" salesforce:"AnnualRevenue"`
	Type              string  `json:"Type" salesforce:"Type"`
}

// accountFields are the SOQL fields selected for Account queries.
var accountFields = []string{
	"Id", "Name", "ParentId", "Website", "Industry", "Description",
	"BillingCity", "BillingState", "BillingCountry", "BillingPostalCode",
	"Phone", "NumberOfEmployees", "AnnualRevenue", "Type",
}

// Contact represents a Salesforce Contact record.
type Contact struct {
	ID        string `json:"Id" salesforce:"Id"`
	FirstName string `json:"FirstName" salesforce:"FirstName"`
	LastName  string `json:"LastName" salesforce:"LastName"`
	Email     string `json:"Email" salesforce:"Email"`
	Title     string `json:"Title" salesforce:"Title"`
	Phone     string `json:"Phone" salesforce:"Phone"`
	AccountID string `json:"AccountId" salesforce:"AccountId"`
}

// FullName joins first and last name, tolerating either being empty.
func (c Contact) FullName() string {
	if c.FirstName == "" {
		return c.LastName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

var contactFields = []string{"Id", "FirstName", "LastName", "Email", "Title", "Phone", "AccountId"}

// Opportunity represents an open Salesforce Opportunity on an account.
type Opportunity struct {
	ID        string  `json:"Id" salesforce:"Id"`
	Name      string  `json:"Name" salesforce:"Name"`
	StageName string  `json:"StageName" salesforce:"StageName"`
	Amount    float64 `json:"Amount" salesforce:"Amount"`
	CloseDate string  `json:"CloseDate" salesforce:"CloseDate"`
}

// FindAccountByWebsite queries Salesforce for an Account matching the given website.
// Returns nil if no account is found.
func FindAccountByWebsite(ctx context.Context, c Client, website string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE Website LIKE '%s' LIMIT 1",
		strings.Join(accountFields, ", "),
		escapeSoql(website),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by website %s", website))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// FindAccountByID queries Salesforce for an Account by its ID.
// Returns nil if no account is found.
func FindAccountByID(ctx context.Context, c Client, id string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE Id = '%s' LIMIT 1",
		strings.Join(accountFields, ", "),
		escapeSoql(id),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by id %s", id))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// FindPrimaryAccount resolves the top-level account for the given account
// by walking ParentId references. Depth is bounded so a cyclic hierarchy
// cannot hang the caller; the deepest ancestor reached is returned.
func FindPrimaryAccount(ctx context.Context, c Client, account *Account) (*Account, error) {
	const maxDepth = 5

	current := account
	for range maxDepth {
		if current.ParentID == "" {
			return current, nil
		}
		parent, err := FindAccountByID(ctx, c, current.ParentID)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("sf: resolve parent of account %s", current.ID))
		}
		if parent == nil {
			return current, nil
		}
		current = parent
	}
	return current, nil
}

// FindContactsByAccountID queries Salesforce for all Contacts on the given
// account.
func FindContactsByAccountID(ctx context.Context, c Client, accountID string) ([]Contact, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Contact WHERE AccountId = '%s'",
		strings.Join(contactFields, ", "),
		escapeSoql(accountID),
	)

	var contacts []Contact
	if err := c.Query(ctx, soql, &contacts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find contacts for account %s", accountID))
	}
	return contacts, nil
}

// OpenOpportunitiesForAccount queries Salesforce for open Opportunities on
// the given account.
func OpenOpportunitiesForAccount(ctx context.Context, c Client, accountID string) ([]Opportunity, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Name, StageName, Amount, CloseDate FROM Opportunity WHERE AccountId = '%s' AND IsClosed = false",
		escapeSoql(accountID),
	)

	var opps []Opportunity
	if err := c.Query(ctx, soql, &opps); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: open opportunities for account %s", accountID))
	}
	return opps, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
