// Package territory resolves HQ coordinates to named sales territories using
// a boundary shapefile, plus an optional rep roster keyed by territory name.
package territory

import (
	"os"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/config"
)

// nameFields are the attribute columns tried, in order, for a record's
// territory name.
var nameFields = []string{"territory", "name", "region"}

// Assigner answers point-in-territory lookups. Regions are checked in name
// order and the first containing region wins, so overlapping boundaries
// resolve the same way on every run.
type Assigner struct {
	regions []*region
	byName  map[string]*region
	reps    map[string]string
}

type region struct {
	name  string
	rings [][]float64 // flat XY rings from every record with this name
}

// Load reads the boundary shapefile and, when configured, the rep roster.
func Load(cfg config.TerritoryConfig) (*Assigner, error) {
	reader, err := shp.Open(cfg.ShapefilePath)
	if err != nil {
		return nil, eris.Wrapf(err, "territory: open shapefile %s", cfg.ShapefilePath)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := -1
	for i, f := range reader.Fields() {
		col := strings.ToLower(strings.TrimRight(f.String(), "\x00"))
		for _, want := range nameFields {
			if col == want {
				nameIdx = i
				break
			}
		}
		if nameIdx >= 0 {
			break
		}
	}
	if nameIdx < 0 {
		return nil, eris.Errorf("territory: shapefile %s has no territory, name, or region column", cfg.ShapefilePath)
	}

	a := newAssigner()
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}
		name := strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		if name == "" {
			skipped++
			continue
		}
		a.add(name, poly)
	}
	if skipped > 0 {
		zap.L().Debug("territory: skipped shapefile records",
			zap.String("shapefile", cfg.ShapefilePath),
			zap.Int("skipped", skipped),
		)
	}
	if len(a.regions) == 0 {
		return nil, eris.Errorf("territory: shapefile %s holds no usable polygons", cfg.ShapefilePath)
	}
	a.finish()

	if cfg.RepMapPath != "" {
		if err := a.loadReps(cfg.RepMapPath); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func newAssigner() *Assigner {
	return &Assigner{
		byName: make(map[string]*region),
		reps:   make(map[string]string),
	}
}

// add folds one shapefile record into the named region. Records sharing a
// name merge, so a territory split across records still reads as one region.
func (a *Assigner) add(name string, poly *shp.Polygon) {
	r := a.byName[name]
	if r == nil {
		r = &region{name: name}
		a.byName[name] = r
		a.regions = append(a.regions, r)
	}

	for i := int32(0); i < poly.NumParts; i++ {
		start := poly.Parts[i]
		end := int32(len(poly.Points))
		if i+1 < poly.NumParts {
			end = poly.Parts[i+1]
		}
		// A closed ring needs a triangle plus the closing point.
		if end-start < 4 {
			continue
		}
		ring := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			ring = append(ring, poly.Points[j].X, poly.Points[j].Y)
		}
		r.rings = append(r.rings, ring)
	}
}

func (a *Assigner) finish() {
	sort.Slice(a.regions, func(i, j int) bool { return a.regions[i].name < a.regions[j].name })
}

// Assign returns the territory containing the point. Shapefile coordinates
// are lon/lat order (X then Y); callers pass lat/lon.
func (a *Assigner) Assign(lat, lon float64) (string, bool) {
	p := geom.Coord{lon, lat}
	for _, r := range a.regions {
		if r.contains(p) {
			return r.name, true
		}
	}
	return "", false
}

// contains counts even-odd across all rings: a point inside a hole sits
// inside two rings and lands outside.
func (r *region) contains(p geom.Coord) bool {
	inside := false
	for _, ring := range r.rings {
		if xy.IsPointInRing(geom.XY, p, ring) {
			inside = !inside
		}
	}
	return inside
}

// Rep returns the rostered rep for a territory.
func (a *Assigner) Rep(territoryName string) (string, bool) {
	rep, ok := a.reps[territoryName]
	return rep, ok
}

// Territories lists the loaded territory names in sorted order.
func (a *Assigner) Territories() []string {
	out := make([]string, 0, len(a.regions))
	for _, r := range a.regions {
		out = append(out, r.name)
	}
	return out
}

func (a *Assigner) loadReps(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "territory: read rep map %s", path)
	}
	var reps map[string]string
	if err := yaml.Unmarshal(data, &reps); err != nil {
		return eris.Wrapf(err, "territory: parse rep map %s", path)
	}
	for name, rep := range reps {
		name = strings.TrimSpace(name)
		a.reps[name] = strings.TrimSpace(rep)
		if a.byName[name] == nil {
			zap.L().Warn("territory: rep map names unknown territory", zap.String("territory", name))
		}
	}
	return nil
}
