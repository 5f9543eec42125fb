package checklist

import "p9e.in/qareports/models"

// Item is one rated observation in a checklist section.
type Item struct {
	Key          string `yaml:"key" json:"key"`
	Label        string `yaml:"label" json:"label"`
	Type         string `yaml:"type" json:"type"`
	EvidenceKind string `yaml:"evidence_kind" json:"evidenceKind"`
}

// Section groups items. Tier is 1 for baseline sections and 2 for the
// add-on sections appended to combined reports.
type Section struct {
	Key           string `yaml:"key" json:"key"`
	Name          string `yaml:"name" json:"name"`
	Description   string `yaml:"description" json:"description,omitempty"`
	Tier          int    `yaml:"-" json:"tier"`
	ClassroomType string `yaml:"-" json:"classroomType,omitempty"`
	Items         []Item `yaml:"items" json:"items"`
}

// Definition is a resolved checklist. Values handed out by the Registry are
// copies and may be modified by callers.
type Definition struct {
	ReportType models.ReportType `json:"reportType"`
	Version    string            `json:"version"`
	Sections   []Section         `json:"sections"`
}

// ItemCount is the number of items across all sections.
func (d Definition) ItemCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Items)
	}
	return n
}

// Section finds a section by key.
func (d Definition) Section(key string) (Section, bool) {
	for _, s := range d.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// Item finds an item by its section and item key.
func (d Definition) Item(section, item string) (Item, bool) {
	s, ok := d.Section(section)
	if !ok {
		return Item{}, false
	}
	for _, it := range s.Items {
		if it.Key == item {
			return it, true
		}
	}
	return Item{}, false
}

// Keys is the set of (section, item) pairs in the definition.
func (d Definition) Keys() map[models.ItemKey]struct{} {
	keys := make(map[models.ItemKey]struct{}, d.ItemCount())
	for _, s := range d.Sections {
		for _, it := range s.Items {
			keys[models.ItemKey{Section: s.Key, Item: it.Key}] = struct{}{}
		}
	}
	return keys
}

func cloneSections(in []Section, tier int) []Section {
	out := make([]Section, len(in))
	for i, s := range in {
		s.Items = append([]Item(nil), s.Items...)
		if tier > 0 {
			s.Tier = tier
		}
		out[i] = s
	}
	return out
}

// ClassroomType describes one age group a school can have classrooms of.
type ClassroomType struct {
	Key       string `yaml:"key" json:"key"`
	Name      string `yaml:"name" json:"name"`
	Ratio     string `yaml:"ratio" json:"ratio"`
	GroupSize int    `yaml:"group_size" json:"groupSize"`
	AgeBucket string `yaml:"age_bucket" json:"ageBucket"`
}

// SectionSummary is a lightweight listing entry for a section.
type SectionSummary struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Tier      int    `json:"tier"`
	ItemCount int    `json:"itemCount"`
}
