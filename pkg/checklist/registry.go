// Package checklist loads the static checklist definitions and resolves the
// checklist a report is inspected against.
package checklist

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"p9e.in/qareports/models"
)

//go:embed definitions/*.yaml
var definitionFS embed.FS

const (
	tier1File      = "tier1.yaml"
	tier2File      = "tier2.yaml"
	classroomsFile = "classrooms.yaml"

	classroomPrefix = "classroom_"
)

type definitionFile struct {
	Version  string    `yaml:"version"`
	Name     string    `yaml:"name"`
	Sections []Section `yaml:"sections"`
}

type classroomFile struct {
	ClassroomTypes   []ClassroomType   `yaml:"classroom_types"`
	ObservationItems []Item            `yaml:"observation_items"`
	AgeBuckets       map[string][]Item `yaml:"age_buckets"`
}

// Registry holds the parsed definitions. It is built once at startup and
// never modified; every accessor returns copies.
type Registry struct {
	version        string
	tier1          []Section
	tier2          []Section
	classroomTypes []ClassroomType
	observation    []Item
	ageBuckets     map[string][]Item
}

// Load parses the embedded definitions.
func Load() (*Registry, error) {
	sub, err := fs.Sub(definitionFS, "definitions")
	if err != nil {
		return nil, fmt.Errorf("checklist definitions: %w", err)
	}
	return LoadFrom(sub)
}

// MustLoad is Load for process start, where a broken definition source is fatal.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// LoadFrom parses tier1.yaml, tier2.yaml and classrooms.yaml from fsys.
func LoadFrom(fsys fs.FS) (*Registry, error) {
	var t1, t2 definitionFile
	if err := decodeFile(fsys, tier1File, &t1); err != nil {
		return nil, err
	}
	if err := decodeFile(fsys, tier2File, &t2); err != nil {
		return nil, err
	}
	var rooms classroomFile
	if err := decodeFile(fsys, classroomsFile, &rooms); err != nil {
		return nil, err
	}

	r := &Registry{
		version:        t1.Version,
		tier1:          cloneSections(t1.Sections, 1),
		tier2:          cloneSections(t2.Sections, 2),
		classroomTypes: rooms.ClassroomTypes,
		observation:    rooms.ObservationItems,
		ageBuckets:     rooms.AgeBuckets,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeFile(fsys fs.FS, name string, dst any) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("checklist definition %s: %w", name, err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("checklist definition %s: %w", name, err)
	}
	return nil
}

func (r *Registry) validate() error {
	if len(r.tier1) == 0 {
		return errors.New("checklist definition tier1: no sections")
	}

	seen := map[models.ItemKey]bool{}
	sectionSeen := map[string]bool{}
	for _, s := range append(append([]Section(nil), r.tier1...), r.tier2...) {
		if s.Key == "" {
			return fmt.Errorf("checklist definition: section %q has no key", s.Name)
		}
		if sectionSeen[s.Key] {
			return fmt.Errorf("checklist definition: duplicate section %q", s.Key)
		}
		sectionSeen[s.Key] = true
		if len(s.Items) == 0 {
			return fmt.Errorf("checklist definition: section %q has no items", s.Key)
		}
		for _, it := range s.Items {
			k := models.ItemKey{Section: s.Key, Item: it.Key}
			if it.Key == "" {
				return fmt.Errorf("checklist definition: item without key in section %q", s.Key)
			}
			if seen[k] {
				return fmt.Errorf("checklist definition: duplicate item %s", k)
			}
			seen[k] = true
		}
	}

	typeSeen := map[string]bool{}
	for _, ct := range r.classroomTypes {
		if ct.Key == "" {
			return errors.New("checklist definition classrooms: classroom type without key")
		}
		if typeSeen[ct.Key] {
			return fmt.Errorf("checklist definition classrooms: duplicate type %q", ct.Key)
		}
		typeSeen[ct.Key] = true
		if _, ok := r.ageBuckets[ct.AgeBucket]; !ok {
			return fmt.Errorf("checklist definition classrooms: type %q uses unknown age bucket %q", ct.Key, ct.AgeBucket)
		}
		if sectionSeen[classroomPrefix+ct.Key] {
			return fmt.Errorf("checklist definition classrooms: section %q collides with a static section", classroomPrefix+ct.Key)
		}
		items := map[string]bool{}
		for _, it := range append(append([]Item(nil), r.observation...), r.ageBuckets[ct.AgeBucket]...) {
			if items[it.Key] {
				return fmt.Errorf("checklist definition classrooms: duplicate item %q for type %q", it.Key, ct.Key)
			}
			items[it.Key] = true
		}
	}
	return nil
}

// Resolve returns the static checklist for a report type. tier1 and
// new_acquisition use Tier 1; tier1_tier2 appends the Tier 2 sections.
func (r *Registry) Resolve(t models.ReportType) (Definition, error) {
	def := Definition{ReportType: t, Version: r.version}
	switch t {
	case models.ReportTier1, models.ReportNewAcquisition:
		def.Sections = cloneSections(r.tier1, 0)
	case models.ReportTier1Tier2:
		def.Sections = append(cloneSections(r.tier1, 0), cloneSections(r.tier2, 0)...)
	default:
		return Definition{}, models.NewValidationError("report_type", "unknown report type %q", t)
	}
	return def, nil
}

// ResolveForSchool resolves the static checklist and appends the school's
// classroom sections.
func (r *Registry) ResolveForSchool(t models.ReportType, classrooms models.ClassroomConfig) (Definition, error) {
	def, err := r.Resolve(t)
	if err != nil {
		return Definition{}, err
	}
	def.Sections = append(def.Sections, r.ResolveDynamicSections(classrooms)...)
	return def, nil
}

// CountItems is the number of static items for a report type, 0 for an unknown type.
func (r *Registry) CountItems(t models.ReportType) int {
	def, err := r.Resolve(t)
	if err != nil {
		return 0
	}
	return def.ItemCount()
}

// SectionsList summarises the static sections of a report type.
func (r *Registry) SectionsList(t models.ReportType) ([]SectionSummary, error) {
	def, err := r.Resolve(t)
	if err != nil {
		return nil, err
	}
	out := make([]SectionSummary, 0, len(def.Sections))
	for _, s := range def.Sections {
		out = append(out, SectionSummary{Key: s.Key, Name: s.Name, Tier: s.Tier, ItemCount: len(s.Items)})
	}
	return out, nil
}

// GetItem looks an item up across Tier 1, Tier 2 and the classroom templates.
func (r *Registry) GetItem(section, item string) (Item, bool) {
	def, _ := r.Resolve(models.ReportTier1Tier2)
	if it, ok := def.Item(section, item); ok {
		return it, true
	}
	if ct, ok := r.classroomType(section); ok {
		for _, it := range r.classroomItems(ct) {
			if it.Key == item {
				return it, true
			}
		}
	}
	return Item{}, false
}

// Version is the definition source version.
func (r *Registry) Version() string { return r.version }
