package artifact

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Scan walks a target root and classifies every artifact under it. Missing,
// partial, or malformed artifacts are skipped with a warning; a scan only
// fails when the root itself is unreadable. Results come back sorted by
// company slug then contact slug, so repeated scans of an unchanged tree
// are identical.
func Scan(root string) ([]model.ProspectArtifact, error) {
	log := zap.L().With(zap.String("component", "artifact.scanner"))

	companies, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read root %s", root)
	}

	var out []model.ProspectArtifact
	for _, company := range companies {
		if !company.IsDir() {
			continue
		}
		companyDir := filepath.Join(root, company.Name())
		contacts, err := os.ReadDir(companyDir)
		if err != nil {
			log.Warn("artifact: skipping unreadable company dir",
				zap.String("dir", companyDir), zap.Error(err))
			continue
		}
		for _, contact := range contacts {
			if !contact.IsDir() {
				continue
			}
			dir := filepath.Join(companyDir, contact.Name())
			art, ok := readArtifact(dir, log)
			if !ok {
				continue
			}
			out = append(out, art)
		}
	}
	return out, nil
}

func readArtifact(dir string, log *zap.Logger) (model.ProspectArtifact, bool) {
	sf, err := readStatus(dir)
	if err != nil {
		log.Warn("artifact: skipping", zap.String("dir", dir), zap.Error(err))
		return model.ProspectArtifact{}, false
	}
	if !validStatus(sf.Status) {
		log.Warn("artifact: skipping, unknown status",
			zap.String("dir", dir), zap.String("status", string(sf.Status)))
		return model.ProspectArtifact{}, false
	}

	// Every non-blocked artifact was rendered from a draft; a missing
	// draft means the render never finished.
	if sf.Status != model.StatusBlocked {
		if _, err := os.Stat(filepath.Join(dir, DraftFile)); err != nil {
			log.Warn("artifact: skipping, no draft", zap.String("dir", dir), zap.Error(err))
			return model.ProspectArtifact{}, false
		}
	}

	return model.ProspectArtifact{
		Dir:        dir,
		RunID:      sf.RunID,
		Company:    sf.Company,
		Contact:    sf.Contact,
		Persona:    sf.Persona,
		Account:    sf.Account,
		Status:     sf.Status,
		Confidence: sf.Confidence,
		Reason:     sf.Reason,
		RenderedAt: sf.RenderedAt,
	}, true
}

func groupBy(arts []model.ProspectArtifact, key func(model.ProspectArtifact) string) map[string][]model.ProspectArtifact {
	out := make(map[string][]model.ProspectArtifact)
	for _, a := range arts {
		k := key(a)
		out[k] = append(out[k], a)
	}
	return out
}

// GroupByCompany buckets artifacts by company display name.
func GroupByCompany(arts []model.ProspectArtifact) map[string][]model.ProspectArtifact {
	return groupBy(arts, func(a model.ProspectArtifact) string { return a.Company })
}

// GroupByPersona buckets artifacts by detected persona; contacts no persona
// matched land under "unknown".
func GroupByPersona(arts []model.ProspectArtifact) map[string][]model.ProspectArtifact {
	return groupBy(arts, func(a model.ProspectArtifact) string {
		if a.Persona == "" {
			return "unknown"
		}
		return a.Persona
	})
}

// GroupByDate buckets artifacts by render date (UTC, YYYY-MM-DD).
func GroupByDate(arts []model.ProspectArtifact) map[string][]model.ProspectArtifact {
	return groupBy(arts, func(a model.ProspectArtifact) string {
		return a.RenderedAt.UTC().Format("2006-01-02")
	})
}

// GroupByAccount buckets artifacts by primary CRM account; artifacts never
// promoted land under "unassigned".
func GroupByAccount(arts []model.ProspectArtifact) map[string][]model.ProspectArtifact {
	return groupBy(arts, func(a model.ProspectArtifact) string {
		if a.Account == "" {
			return "unassigned"
		}
		return a.Account
	})
}

// CountByStatus tallies artifacts per lifecycle status for summaries.
func CountByStatus(arts []model.ProspectArtifact) map[model.ProspectStatus]int {
	out := make(map[model.ProspectStatus]int)
	for _, a := range arts {
		out[a.Status]++
	}
	return out
}
