package artifact

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Writer owns every mutation of an artifact tree: laying down renders,
// approving in place, promoting across the active-accounts boundary.
type Writer struct {
	root    string
	nowFunc func() time.Time
}

// NewWriter creates a writer rooted at the target directory.
func NewWriter(root string) *Writer {
	return &Writer{root: root, nowFunc: time.Now}
}

// WithNow sets a fixed clock for testing.
func (w *Writer) WithNow(fn func() time.Time) *Writer {
	w.nowFunc = fn
	return w
}

// Dir returns the artifact directory a brief renders into.
func (w *Writer) Dir(brief *model.ProspectBrief) string {
	return filepath.Join(w.root, Slug(brief.Company.Name), Slug(brief.Contact.Name))
}

// WriteDraft lays down a freshly rendered artifact: brief.json, draft.md,
// and a status file in the given lifecycle state (drafted or rendered).
// Returns the artifact directory.
func (w *Writer) WriteDraft(brief *model.ProspectBrief, draft string, status model.ProspectStatus) (string, error) {
	if status != model.StatusDrafted && status != model.StatusRendered {
		return "", eris.Errorf("artifact: %s is not a draft status", status)
	}

	dir := w.Dir(brief)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "artifact: create %s", dir)
	}

	rawBrief, err := json.MarshalIndent(brief, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "artifact: marshal brief")
	}
	if err := os.WriteFile(filepath.Join(dir, BriefFile), rawBrief, 0o644); err != nil {
		return "", eris.Wrapf(err, "artifact: write brief in %s", dir)
	}
	if err := os.WriteFile(filepath.Join(dir, DraftFile), []byte(draft), 0o644); err != nil {
		return "", eris.Wrapf(err, "artifact: write draft in %s", dir)
	}

	now := w.nowFunc().UTC()
	sf := &statusFile{
		RunID:      brief.RunID,
		Company:    brief.Company.Name,
		Contact:    brief.Contact.Name,
		Persona:    brief.Persona,
		Account:    brief.Company.Account,
		Status:     status,
		Confidence: brief.Confidence,
		RenderedAt: now,
		UpdatedAt:  now,
	}
	if err := writeStatus(dir, sf); err != nil {
		return "", err
	}
	return dir, nil
}

// WriteBlocked records a gate denial as a status-only artifact so scans can
// report what was blocked and why. No draft is written.
func (w *Writer) WriteBlocked(brief *model.ProspectBrief, decision model.GateDecision) (string, error) {
	dir := w.Dir(brief)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "artifact: create %s", dir)
	}

	now := w.nowFunc().UTC()
	sf := &statusFile{
		RunID:      brief.RunID,
		Company:    brief.Company.Name,
		Contact:    brief.Contact.Name,
		Persona:    brief.Persona,
		Account:    brief.Company.Account,
		Status:     model.StatusBlocked,
		Confidence: brief.Confidence,
		Reason:     decision.ReasonCode,
		RenderedAt: now,
		UpdatedAt:  now,
	}
	if err := writeStatus(dir, sf); err != nil {
		return "", err
	}
	return dir, nil
}

// WriteQuality writes the render's quality report next to the draft.
func (w *Writer) WriteQuality(dir string, report any) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return eris.Wrap(err, "artifact: marshal quality report")
	}
	if err := os.WriteFile(filepath.Join(dir, QualityFile), raw, 0o644); err != nil {
		return eris.Wrapf(err, "artifact: write quality in %s", dir)
	}
	return nil
}

// Approve marks a drafted or rendered artifact send-ready in place.
// Approving an already approved artifact is a no-op.
func (w *Writer) Approve(dir string) error {
	sf, err := readStatus(dir)
	if err != nil {
		return err
	}
	switch sf.Status {
	case model.StatusDrafted, model.StatusRendered:
	case model.StatusApproved:
		return nil
	default:
		return eris.Errorf("artifact: cannot approve %s artifact in %s", sf.Status, dir)
	}

	sf.Status = model.StatusApproved
	sf.UpdatedAt = w.nowFunc().UTC()
	return writeStatus(dir, sf)
}

// Promote copies an approved artifact into the active-accounts workspace
// and stamps both copies promoted. The account, when given, becomes the
// artifact's primary CRM account. Returns the destination directory.
func (w *Writer) Promote(dir, activeRoot, account string) (string, error) {
	sf, err := readStatus(dir)
	if err != nil {
		return "", err
	}
	if sf.Status != model.StatusApproved {
		return "", eris.Errorf("artifact: cannot promote %s artifact in %s; approve it first", sf.Status, dir)
	}

	sf.Status = model.StatusPromoted
	if account != "" {
		sf.Account = account
	}
	sf.UpdatedAt = w.nowFunc().UTC()

	dest := filepath.Join(activeRoot, Slug(sf.Company), Slug(sf.Contact))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", eris.Wrapf(err, "artifact: create %s", dest)
	}
	for _, name := range []string{BriefFile, DraftFile, QualityFile} {
		src := filepath.Join(dir, name)
		if name == QualityFile {
			if _, err := os.Stat(src); err != nil {
				continue
			}
		}
		if err := copyFile(src, filepath.Join(dest, name)); err != nil {
			return "", err
		}
	}
	if err := writeStatus(dest, sf); err != nil {
		return "", err
	}

	// The source records the promotion too, so a scan of the target root
	// never double-counts the prospect as still pending.
	if err := writeStatus(dir, sf); err != nil {
		return "", err
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "artifact: open %s", src)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "artifact: create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "artifact: copy to %s", dst)
	}
	return eris.Wrapf(out.Close(), "artifact: close %s", dst)
}
