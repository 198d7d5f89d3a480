// Package catalog holds the read-only lookup tables the pipeline consults:
// the alias dictionary, dataset years, required variables, geography
// requirements, state capitals and the national bounding geometry.
package catalog

import (
	"embed"
	"errors"
	"io/fs"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml data/*.geojson
var embedded embed.FS

// File names inside a catalog directory.
const (
	AliasesFile  = "aliases.yaml"
	DatasetsFile = "datasets.yaml"
	StatesFile   = "states.yaml"
	USBoundsFile = "us_bounds.geojson"
)

// AliasEntry maps a friendly alias to a Census variable code.
type AliasEntry struct {
	Name         string           `yaml:"-" json:"alias"`
	Variable     string           `yaml:"variable" json:"variable"`
	Description  string           `yaml:"description" json:"description,omitempty"`
	Normalizable bool             `yaml:"normalizable" json:"normalizable"`
	APIs         map[string][]int `yaml:"api" json:"api"`
}

// ValidFor reports whether the alias can be queried against api at year.
func (a AliasEntry) ValidFor(api string, year int) bool {
	return slices.Contains(a.APIs[api], year)
}

// GeographyLevel is one entry of a dataset's geography catalog. Requires
// lists the request fields that must be present to query at this level.
type GeographyLevel struct {
	Name     string   `yaml:"name" json:"name"`
	Requires []string `yaml:"requires" json:"requires"`
}

// Dataset describes one Census API dataset.
type Dataset struct {
	Years                   []int            `yaml:"years"`
	RequiredVariables       []string         `yaml:"required_variables"`
	RequiredVariablesByYear map[int][]string `yaml:"required_variables_by_year"`
	Geography               []GeographyLevel `yaml:"geography"`
}

// State is a state or territory with its capital's coordinates.
type State struct {
	Code    string    `yaml:"code"`
	Name    string    `yaml:"name"`
	FIPS    string    `yaml:"fips"`
	Capital []float64 `yaml:"capital"` // lat, lng
}

// Catalog is the loaded set of lookup tables. It is immutable after Load.
type Catalog struct {
	aliases    map[string]AliasEntry
	byVariable map[string]string
	datasets   map[string]Dataset
	states     map[string]State
	stateNames map[string]string
	usBounds   []byte
}

// Default loads the catalog compiled into the binary.
func Default() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, eris.Wrap(err, "catalog: embedded data")
	}
	return Load(sub)
}

// LoadDir loads a catalog from dir. Files missing from dir fall back to the
// embedded copies.
func LoadDir(dir string) (*Catalog, error) {
	if dir == "" {
		return Default()
	}
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, eris.Wrap(err, "catalog: embedded data")
	}
	return Load(overlayFS{primary: os.DirFS(dir), fallback: sub})
}

// Load reads every catalog file from fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	var aliasDoc struct {
		Aliases map[string]AliasEntry `yaml:"aliases"`
	}
	if err := readYAML(fsys, AliasesFile, &aliasDoc); err != nil {
		return nil, err
	}
	var datasetDoc struct {
		Datasets map[string]Dataset `yaml:"datasets"`
	}
	if err := readYAML(fsys, DatasetsFile, &datasetDoc); err != nil {
		return nil, err
	}
	var stateDoc struct {
		States []State `yaml:"states"`
	}
	if err := readYAML(fsys, StatesFile, &stateDoc); err != nil {
		return nil, err
	}
	bounds, err := fs.ReadFile(fsys, USBoundsFile)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", USBoundsFile)
	}

	c := &Catalog{
		aliases:    make(map[string]AliasEntry, len(aliasDoc.Aliases)),
		byVariable: make(map[string]string, len(aliasDoc.Aliases)),
		datasets:   datasetDoc.Datasets,
		states:     make(map[string]State, len(stateDoc.States)),
		stateNames: make(map[string]string, len(stateDoc.States)),
		usBounds:   bounds,
	}

	names := make([]string, 0, len(aliasDoc.Aliases))
	for name := range aliasDoc.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry := aliasDoc.Aliases[name]
		if entry.Variable == "" {
			return nil, eris.Errorf("catalog: alias %q has no variable", name)
		}
		entry.Name = name
		c.aliases[name] = entry
		// First alias in name order owns the reverse mapping.
		if _, taken := c.byVariable[entry.Variable]; !taken {
			c.byVariable[entry.Variable] = name
		}
	}

	for api, ds := range c.datasets {
		if len(ds.Years) == 0 {
			return nil, eris.Errorf("catalog: dataset %q has no years", api)
		}
		ds.Years = slices.Sorted(slices.Values(ds.Years))
		c.datasets[api] = ds
	}

	fold := cases.Fold()
	for _, st := range stateDoc.States {
		if len(st.Capital) != 2 {
			return nil, eris.Errorf("catalog: state %q capital must be [lat, lng]", st.Code)
		}
		code := strings.ToUpper(st.Code)
		c.states[code] = st
		c.stateNames[fold.String(st.Name)] = code
	}

	return c, nil
}

func readYAML(fsys fs.FS, name string, out any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return eris.Wrapf(err, "catalog: read %s", name)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "catalog: parse %s", name)
	}
	return nil
}

// overlayFS serves files from primary, falling back to fallback when the
// file does not exist in primary.
type overlayFS struct {
	primary  fs.FS
	fallback fs.FS
}

func (o overlayFS) Open(name string) (fs.File, error) {
	f, err := o.primary.Open(name)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return o.fallback.Open(name)
	}
	return nil, err
}

// AvailableYears returns the sorted years a dataset is published for.
func (c *Catalog) AvailableYears(api string) ([]int, bool) {
	ds, ok := c.datasets[api]
	if !ok {
		return nil, false
	}
	return slices.Clone(ds.Years), true
}

// LatestYear returns the most recent year published for api.
func (c *Catalog) LatestYear(api string) (int, bool) {
	ds, ok := c.datasets[api]
	if !ok {
		return 0, false
	}
	return ds.Years[len(ds.Years)-1], true
}

// HasYear reports whether api is published for year.
func (c *Catalog) HasYear(api string, year int) bool {
	ds, ok := c.datasets[api]
	return ok && slices.Contains(ds.Years, year)
}

// RequiredVariables returns the variables every query against (api, year)
// must include. Unknown datasets require NAME.
func (c *Catalog) RequiredVariables(api string, year int) []string {
	ds, ok := c.datasets[api]
	if !ok {
		return []string{"NAME"}
	}
	if vars, ok := ds.RequiredVariablesByYear[year]; ok {
		return slices.Clone(vars)
	}
	return slices.Clone(ds.RequiredVariables)
}

// State looks up a state by 2-letter code or full name, case-insensitively.
func (c *Catalog) State(s string) (State, bool) {
	s = strings.TrimSpace(s)
	if st, ok := c.states[strings.ToUpper(s)]; ok {
		return st, true
	}
	if code, ok := c.stateNames[cases.Fold().String(s)]; ok {
		return c.states[code], true
	}
	return State{}, false
}

// CapitalCoordinates returns the lat/lng of a state's capital.
func (c *Catalog) CapitalCoordinates(state string) (lat, lng float64, ok bool) {
	st, ok := c.State(state)
	if !ok {
		return 0, 0, false
	}
	return st.Capital[0], st.Capital[1], true
}

// USBounds returns the national bounding geometry as a GeoJSON Feature.
func (c *Catalog) USBounds() []byte {
	return slices.Clone(c.usBounds)
}
