// Package manifest reads YAML files that describe how a batch should be
// filed, so a run can skip the classifier entirely.
//
//	defaults:
//	  universe: Hardware
//	  audience: internal
//	files:
//	  - file: widget-datasheet.pdf
//	    category: Sensors
//	    product: Widget
//	    material_type: datasheet
//
// Hierarchy entries are given by name or numeric id.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/matflow/internal/model"
	"gopkg.in/yaml.v3"
)

// ManifestReasoning marks suggestions that came from a manifest.
const ManifestReasoning = "Filled from manifest"

// ErrInvalidManifest is returned for manifests that cannot be used.
var ErrInvalidManifest = errors.New("invalid manifest")

var (
	materialTypes = map[model.MaterialType]bool{
		model.MaterialProductBrief: true,
		model.MaterialSalesDeck:    true,
		model.MaterialDatasheet:    true,
		model.MaterialCaseStudy:    true,
		model.MaterialWhitepaper:   true,
		model.MaterialTraining:     true,
		model.MaterialOther:        true,
	}
	audiences = map[model.Audience]bool{
		model.AudienceInternal:       true,
		model.AudienceCustomerFacing: true,
		model.AudienceBoth:           true,
	}
)

// Entry describes one file. Empty fields fall back to the manifest defaults.
type Entry struct {
	File                 string `yaml:"file"`
	Universe             string `yaml:"universe"`
	Category             string `yaml:"category"`
	Product              string `yaml:"product"`
	MaterialType         string `yaml:"material_type"`
	Audience             string `yaml:"audience"`
	OtherTypeDescription string `yaml:"other_type_description"`
}

// Manifest is a parsed manifest file.
type Manifest struct {
	Defaults Entry   `yaml:"defaults"`
	Files    []Entry `yaml:"files"`
}

// Resolver looks hierarchy entries up by name.
type Resolver interface {
	Universes(ctx context.Context) ([]model.Universe, error)
	Categories(ctx context.Context, universeID int) ([]model.Category, error)
	Products(ctx context.Context, universeID int, categoryID *int) ([]model.Product, error)
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-selected path
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse decodes and validates a manifest.
func Parse(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks enum values and rejects repeated file names.
func (m *Manifest) Validate() error {
	if err := validateEntry(m.Defaults, "defaults"); err != nil {
		return err
	}
	seen := make(map[string]bool, len(m.Files))
	for i, e := range m.Files {
		if strings.TrimSpace(e.File) == "" {
			return fmt.Errorf("%w: files[%d] has no file name", ErrInvalidManifest, i)
		}
		if seen[e.File] {
			return fmt.Errorf("%w: %s is listed twice", ErrInvalidManifest, e.File)
		}
		seen[e.File] = true
		if err := validateEntry(e, e.File); err != nil {
			return err
		}
	}
	return nil
}

func validateEntry(e Entry, where string) error {
	if e.MaterialType != "" && !materialTypes[model.MaterialType(e.MaterialType)] {
		return fmt.Errorf("%w: %s: unknown material_type %q", ErrInvalidManifest, where, e.MaterialType)
	}
	if e.Audience != "" && !audiences[model.Audience(e.Audience)] {
		return fmt.Errorf("%w: %s: unknown audience %q", ErrInvalidManifest, where, e.Audience)
	}
	return nil
}

// Entry returns the effective entry for filename, merged over the defaults.
func (m *Manifest) Entry(filename string) Entry {
	merged := m.Defaults
	merged.File = filename
	for _, e := range m.Files {
		if e.File != filename {
			continue
		}
		if e.Universe != "" {
			merged.Universe = e.Universe
			// A different universe invalidates inherited category and product.
			if e.Category == "" {
				merged.Category = ""
			}
			if e.Product == "" {
				merged.Product = ""
			}
		}
		if e.Category != "" {
			merged.Category = e.Category
			if e.Product == "" {
				merged.Product = ""
			}
		}
		if e.Product != "" {
			merged.Product = e.Product
		}
		if e.MaterialType != "" {
			merged.MaterialType = e.MaterialType
		}
		if e.Audience != "" {
			merged.Audience = e.Audience
		}
		if e.OtherTypeDescription != "" {
			merged.OtherTypeDescription = e.OtherTypeDescription
		}
		break
	}
	return merged
}

// Suggestions builds one manual suggestion per file, in file order.
// Hierarchy names that do not resolve leave the field unset and are
// noted in the reasoning, so the file fails validation at upload time.
func (m *Manifest) Suggestions(ctx context.Context, files []model.File, resolver Resolver) ([]model.FileSuggestion, error) {
	out := make([]model.FileSuggestion, 0, len(files))
	for _, f := range files {
		s, err := m.suggestion(ctx, m.Entry(f.Name), resolver)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Manifest) suggestion(ctx context.Context, e Entry, resolver Resolver) (model.FileSuggestion, error) {
	s := model.FileSuggestion{
		Filename:     e.File,
		MaterialType: model.MaterialType(e.MaterialType),
		Audience:     model.Audience(e.Audience),
		Confidence:   model.ManualConfidence,
		Reasoning:    ManifestReasoning,
	}
	if s.MaterialType == model.MaterialOther {
		s.OtherTypeDescription = e.OtherTypeDescription
	}

	problem, err := resolveHierarchy(ctx, e, resolver, &s)
	if err != nil {
		return model.FileSuggestion{}, err
	}
	if problem != "" {
		s.Reasoning += ": " + problem
	}
	return s, nil
}

// resolveHierarchy fills the hierarchy fields of s from e. It stops at the
// first name that does not resolve and reports it.
func resolveHierarchy(ctx context.Context, e Entry, resolver Resolver, s *model.FileSuggestion) (string, error) {
	if e.Universe == "" {
		return "", nil
	}
	universes, err := resolver.Universes(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load universes: %w", err)
	}
	u, ok := findUniverse(universes, e.Universe)
	if !ok {
		return fmt.Sprintf("unknown universe %q", e.Universe), nil
	}
	s.UniverseID, s.UniverseName = model.IntPtr(u.ID), u.Name

	if e.Category != "" {
		categories, err := resolver.Categories(ctx, u.ID)
		if err != nil {
			return "", fmt.Errorf("failed to load categories for %s: %w", u.Name, err)
		}
		c, ok := findCategory(categories, e.Category)
		if !ok {
			return fmt.Sprintf("unknown category %q in %s", e.Category, u.Name), nil
		}
		s.CategoryID, s.CategoryName = model.IntPtr(c.ID), c.Name
	}

	if e.Product != "" {
		products, err := resolver.Products(ctx, u.ID, s.CategoryID)
		if err != nil {
			return "", fmt.Errorf("failed to load products for %s: %w", u.Name, err)
		}
		p, ok := findProduct(products, e.Product)
		if !ok {
			return fmt.Sprintf("unknown product %q", e.Product), nil
		}
		s.ProductID, s.ProductName = model.IntPtr(p.ID), p.Name
		// A product named without its category still pins the category.
		if s.CategoryID == nil && p.CategoryID != nil {
			s.CategoryID = model.IntPtr(*p.CategoryID)
		}
	}
	return "", nil
}

func matches(ref string, id int, name string) bool {
	if n, err := strconv.Atoi(ref); err == nil {
		return n == id
	}
	return strings.EqualFold(strings.TrimSpace(ref), name)
}

func findUniverse(list []model.Universe, ref string) (model.Universe, bool) {
	for _, u := range list {
		if matches(ref, u.ID, u.Name) {
			return u, true
		}
	}
	return model.Universe{}, false
}

func findCategory(list []model.Category, ref string) (model.Category, bool) {
	for _, c := range list {
		if matches(ref, c.ID, c.Name) {
			return c, true
		}
	}
	return model.Category{}, false
}

func findProduct(list []model.Product, ref string) (model.Product, bool) {
	for _, p := range list {
		if matches(ref, p.ID, p.Name) {
			return p, true
		}
	}
	return model.Product{}, false
}
