// Package artifact persists rendered outreach drafts as plain directories
// and reads them back for reporting. Layout is one directory per contact,
// <root>/<company-slug>/<contact-slug>, holding brief.json, draft.md,
// status.json, and optionally quality.json. The scanner side never opens a
// write handle; the writer side owns every mutation, so a scan running
// alongside a render at worst sees a partial artifact and skips it.
package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// File names inside an artifact directory.
const (
	BriefFile   = "brief.json"
	DraftFile   = "draft.md"
	StatusFile  = "status.json"
	QualityFile = "quality.json"
)

// statusFile is the on-disk status record. It is the artifact's source of
// truth: the scanner classifies from it alone and the writer rewrites it on
// every state transition.
type statusFile struct {
	RunID      string               `json:"run_id"`
	Company    string               `json:"company"`
	Contact    string               `json:"contact"`
	Persona    string               `json:"persona,omitempty"`
	Account    string               `json:"account,omitempty"`
	Status     model.ProspectStatus `json:"status"`
	Confidence model.ConfidenceMode `json:"confidence_mode,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	RenderedAt time.Time            `json:"rendered_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

func readStatus(dir string) (*statusFile, error) {
	raw, err := os.ReadFile(filepath.Join(dir, StatusFile))
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read status in %s", dir)
	}
	var sf statusFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return nil, eris.Wrapf(err, "artifact: parse status in %s", dir)
	}
	return &sf, nil
}

// ReadBrief loads the brief an artifact was rendered from. Approval and
// promotion re-run their gates against it rather than trusting the status
// file, which only records the last transition.
func ReadBrief(dir string) (*model.ProspectBrief, error) {
	raw, err := os.ReadFile(filepath.Join(dir, BriefFile))
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read brief in %s", dir)
	}
	var brief model.ProspectBrief
	if err := json.Unmarshal(raw, &brief); err != nil {
		return nil, eris.Wrapf(err, "artifact: parse brief in %s", dir)
	}
	return &brief, nil
}

func writeStatus(dir string, sf *statusFile) error {
	raw, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return eris.Wrap(err, "artifact: marshal status")
	}
	if err := os.WriteFile(filepath.Join(dir, StatusFile), raw, 0o644); err != nil {
		return eris.Wrapf(err, "artifact: write status in %s", dir)
	}
	return nil
}

func validStatus(s model.ProspectStatus) bool {
	switch s {
	case model.StatusDrafted, model.StatusRendered, model.StatusApproved,
		model.StatusPromoted, model.StatusBlocked:
		return true
	}
	return false
}

// Slug flattens a display name into a filesystem-safe directory name:
// lowercase, runs of anything non-alphanumeric collapsed to single hyphens.
func Slug(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
