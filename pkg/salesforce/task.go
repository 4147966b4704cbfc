package salesforce

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// LogOutreachTask records a completed outreach Task on the account, linked
// to the contact when a contact ID is known. Returns the new Task ID.
func LogOutreachTask(ctx context.Context, c Client, accountID, contactID, subject, description string) (string, error) {
	if accountID == "" {
		return "", eris.New("sf: account id is required for task")
	}
	if subject == "" {
		return "", eris.New("sf: task subject is required")
	}

	fields := map[string]any{
		"WhatId":      accountID,
		"Subject":     subject,
		"Description": description,
		"Status":      "Completed",
		"TaskSubtype": "Email",
	}
	if contactID != "" {
		fields["WhoId"] = contactID
	}

	id, err := c.InsertOne(ctx, "Task", fields)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: log outreach task for account %s", accountID))
	}
	return id, nil
}
