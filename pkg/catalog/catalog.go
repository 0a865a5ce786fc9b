// Package catalog loads the preset catalog document and validates it eagerly
// into typed specs. A malformed entry fails the whole load; nothing downstream
// ever sees a half-checked preset.
package catalog

import (
	"net/url"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"github.com/modelfetch-dev/modelfetch/pkg/model"
	"gopkg.in/yaml.v3"
)

var checksumRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// document mirrors the on-disk catalog shape before validation.
type document struct {
	Presets map[string]presetEntry `yaml:"presets"`
}

type presetEntry struct {
	Name      string      `yaml:"name"`
	Category  string      `yaml:"category"`
	Version   string      `yaml:"version"`
	MinEngine string      `yaml:"min_engine"`
	Files     []fileEntry `yaml:"files"`
}

type fileEntry struct {
	URL      string `yaml:"url"`
	Path     string `yaml:"path"`
	Size     int64  `yaml:"size"`
	Checksum string `yaml:"checksum"`
	// Tier overrides the category-derived install order when set.
	Tier *int `yaml:"tier"`
}

// Catalog is the validated, read-only preset index.
type Catalog struct {
	presets map[string]model.PresetSpec
}

// Load parses and validates the catalog document at path. engineVersion is
// checked against each preset's min_engine constraint.
func Load(catalogPath, engineVersion string) (*Catalog, error) {
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog %s", catalogPath)
	}
	return Parse(data, engineVersion)
}

// Parse validates raw catalog bytes. Split out from Load for tests and for
// callers that fetch the document themselves.
func Parse(data []byte, engineVersion string) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedCatalog, err.Error())
	}
	if len(doc.Presets) == 0 {
		return nil, errors.Wrap(errors.ErrMalformedCatalog, "catalog defines no presets")
	}

	presets := make(map[string]model.PresetSpec, len(doc.Presets))
	for id, entry := range doc.Presets {
		spec, err := buildPreset(id, entry, engineVersion)
		if err != nil {
			return nil, err
		}
		presets[id] = spec
	}
	return &Catalog{presets: presets}, nil
}

func buildPreset(id string, entry presetEntry, engineVersion string) (model.PresetSpec, error) {
	var zero model.PresetSpec
	if id == "" {
		return zero, errors.Wrap(errors.ErrMalformedCatalog, "preset with empty id")
	}
	if entry.Name == "" {
		return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: missing name", id)
	}
	if len(entry.Files) == 0 {
		return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: no files", id)
	}
	if entry.Version != "" {
		if _, err := goversion.NewVersion(entry.Version); err != nil {
			return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: bad version %q", id, entry.Version)
		}
	}

	spec := model.PresetSpec{
		ID:        id,
		Name:      entry.Name,
		Category:  entry.Category,
		Version:   entry.Version,
		MinEngine: entry.MinEngine,
		Files:     make([]model.FileSpec, 0, len(entry.Files)),
	}
	if entry.MinEngine != "" {
		if _, err := goversion.NewVersion(entry.MinEngine); err != nil {
			return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: bad min_engine %q", id, entry.MinEngine)
		}
		if !spec.MatchEngine(engineVersion) {
			return zero, errors.Wrapf(errors.ErrMalformedCatalog,
				"preset %s requires engine >= %s, running %s", id, entry.MinEngine, engineVersion)
		}
	}

	seen := make(map[string]bool, len(entry.Files))
	for i, fe := range entry.Files {
		fs, err := buildFile(id, i, fe)
		if err != nil {
			return zero, err
		}
		if seen[fs.Path] {
			return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: duplicate path %s", id, fs.Path)
		}
		seen[fs.Path] = true
		spec.Files = append(spec.Files, fs)
	}
	return spec, nil
}

func buildFile(presetID string, idx int, fe fileEntry) (model.FileSpec, error) {
	var zero model.FileSpec
	if fe.URL == "" {
		return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: file %d missing url", presetID, idx)
	}
	parsed, err := url.Parse(fe.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: file %d has invalid url %q", presetID, idx, fe.URL)
	}
	if fe.Path == "" {
		return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: file %d missing path", presetID, idx)
	}
	clean := path.Clean(fe.Path)
	if path.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: file %d escapes the model tree: %q", presetID, idx, fe.Path)
	}
	if fe.Size <= 0 {
		return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: file %s has non-positive size", presetID, clean)
	}
	if fe.Checksum != "" && !checksumRe.MatchString(fe.Checksum) {
		return zero, errors.Wrapf(errors.ErrMalformedCatalog, "preset %s: file %s has malformed checksum", presetID, clean)
	}

	tier := model.TierForCategory(fileCategory(clean))
	if fe.Tier != nil {
		tier = *fe.Tier
	}
	return model.FileSpec{
		URL:      fe.URL,
		Path:     clean,
		Size:     fe.Size,
		Checksum: strings.ToLower(fe.Checksum),
		Tier:     tier,
	}, nil
}

// fileCategory returns the leading path element, which names the model
// category directory in the target tree.
func fileCategory(p string) string {
	if i := strings.IndexByte(p, '/'); i > 0 {
		return p[:i]
	}
	return ""
}

// Get returns the preset for the given id.
func (c *Catalog) Get(presetID string) (model.PresetSpec, error) {
	spec, ok := c.presets[presetID]
	if !ok {
		return model.PresetSpec{}, errors.Wrap(errors.ErrUnknownPreset, presetID)
	}
	return spec, nil
}

// Has reports whether the catalog defines the preset.
func (c *Catalog) Has(presetID string) bool {
	_, ok := c.presets[presetID]
	return ok
}

// IDs returns all preset ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.presets))
	for id := range c.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
