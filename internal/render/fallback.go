package render

import (
	"fmt"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// FallbackDraft builds the deterministic template draft used when the
// generator is unavailable. Same brief, same draft: it leans on the top
// verified signal and the selected offer, and flags itself for editing so
// nobody mistakes it for generated copy.
func FallbackDraft(brief *model.ProspectBrief) string {
	var b strings.Builder

	name := firstName(brief.Contact.Name)
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)

	verified := brief.VerifiedSignals()
	if len(verified) > 0 {
		top := verified[0]
		fmt.Fprintf(&b, "I noticed that %s", strings.TrimSpace(top.Claim))
		if top.SourceURL != "" {
			fmt.Fprintf(&b, " (%s)", top.SourceURL)
		}
		b.WriteString(".\n\n")
	} else {
		fmt.Fprintf(&b, "I have been following %s and wanted to reach out.\n\n", brief.Company.Name)
	}

	if brief.OfferID != "" {
		fmt.Fprintf(&b, "Teams in similar situations have found a %s a useful first step. ", humanize(brief.OfferID))
	}
	b.WriteString("Would a short call in the next couple of weeks make sense?\n\n")
	b.WriteString("Best regards\n\n")
	b.WriteString("[template draft: generator unavailable, edit before sending]\n")

	return b.String()
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
