package checklist

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p9e.in/qareports/models"
)

func loadRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Load()
	require.NoError(t, err)
	return r
}

func TestResolve(t *testing.T) {
	r := loadRegistry(t)

	tier1, err := r.Resolve(models.ReportTier1)
	require.NoError(t, err)
	acquisition, err := r.Resolve(models.ReportNewAcquisition)
	require.NoError(t, err)
	combined, err := r.Resolve(models.ReportTier1Tier2)
	require.NoError(t, err)

	assert.Equal(t, tier1.Sections, acquisition.Sections, "new_acquisition uses the Tier 1 checklist")
	assert.Equal(t, 32, tier1.ItemCount())
	assert.Equal(t, 45, combined.ItemCount())

	require.Greater(t, len(combined.Sections), len(tier1.Sections))
	assert.Equal(t, tier1.Sections, combined.Sections[:len(tier1.Sections)])
	for _, s := range combined.Sections[len(tier1.Sections):] {
		assert.Equal(t, 2, s.Tier, "section %s", s.Key)
	}
	for _, s := range tier1.Sections {
		assert.Equal(t, 1, s.Tier, "section %s", s.Key)
	}

	_, ok := tier1.Item("health_safety", "fire_extinguisher")
	assert.True(t, ok)
	_, ok = tier1.Item("health_safety", "allergy_list")
	assert.True(t, ok)
}

func TestResolveUnknownType(t *testing.T) {
	r := loadRegistry(t)

	_, err := r.Resolve(models.ReportType("tier3"))
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "report_type", ve.Field)
	assert.Zero(t, r.CountItems("tier3"))
}

func TestResolveIsDeterministicAndIsolated(t *testing.T) {
	r := loadRegistry(t)

	first, err := r.Resolve(models.ReportTier1Tier2)
	require.NoError(t, err)
	first.Sections[0].Items[0].Label = "changed by caller"
	first.Sections = first.Sections[:1]

	second, err := r.Resolve(models.ReportTier1Tier2)
	require.NoError(t, err)
	third, err := r.Resolve(models.ReportTier1Tier2)
	require.NoError(t, err)

	assert.Equal(t, second, third)
	assert.NotEqual(t, "changed by caller", second.Sections[0].Items[0].Label)
	assert.Equal(t, 45, second.ItemCount())
}

func TestKeysAreUniqueInResolvedChecklist(t *testing.T) {
	r := loadRegistry(t)
	def, err := r.ResolveForSchool(models.ReportTier1Tier2, models.ClassroomConfig{
		"infant_a": 1, "infant_b": 1, "toddler": 1, "twos": 1, "threes": 1, "fours": 1, "ga_prek": 1, "school_age": 1,
	})
	require.NoError(t, err)
	assert.Len(t, def.Keys(), def.ItemCount())
}

func TestSectionsList(t *testing.T) {
	r := loadRegistry(t)

	list, err := r.SectionsList(models.ReportTier1)
	require.NoError(t, err)
	require.NotEmpty(t, list)

	total := 0
	for _, s := range list {
		total += s.ItemCount
	}
	assert.Equal(t, r.CountItems(models.ReportTier1), total)
	assert.Equal(t, "lobby", list[0].Key)
}

func TestGetItem(t *testing.T) {
	r := loadRegistry(t)

	tests := []struct {
		name    string
		section string
		item    string
		found   bool
	}{
		{"tier 1 item", "health_safety", "fire_drills", true},
		{"tier 2 item", "curriculum", "assessments", true},
		{"classroom common item", "classroom_toddler", "room_clean", true},
		{"classroom bucket item", "classroom_infant_a", "safe_sleep", true},
		{"item from another bucket", "classroom_toddler", "safe_sleep", false},
		{"unknown section", "attic", "dust", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := r.GetItem(tt.section, tt.item)
			assert.Equal(t, tt.found, ok)
		})
	}
}

func TestLoadFromRejectsBrokenSources(t *testing.T) {
	valid := fstest.MapFS{
		tier1File: {Data: []byte(`
version: "1"
sections:
  - key: a
    name: A
    items:
      - {key: one, label: One}
`)},
		tier2File: {Data: []byte(`
sections:
  - key: b
    name: B
    items:
      - {key: two, label: Two}
`)},
		classroomsFile: {Data: []byte(`
classroom_types:
  - {key: toddler, name: Toddler, ratio: "1:6", group_size: 12, age_bucket: toddler}
observation_items:
  - {key: clean, label: Clean}
age_buckets:
  toddler:
    - {key: potty, label: Potty}
`)},
	}

	_, err := LoadFrom(valid)
	require.NoError(t, err)

	tests := []struct {
		name  string
		file  string
		data  string
		drop  bool
	}{
		{name: "missing tier1", file: tier1File, drop: true},
		{name: "corrupt yaml", file: tier2File, data: "sections: [::"},
		{name: "duplicate section across tiers", file: tier2File, data: "sections:\n  - key: a\n    name: A\n    items:\n      - {key: x}\n"},
		{name: "duplicate item", file: tier1File, data: "sections:\n  - key: a\n    items:\n      - {key: one}\n      - {key: one}\n"},
		{name: "empty section", file: tier1File, data: "sections:\n  - key: a\n    items: []\n"},
		{name: "unknown age bucket", file: classroomsFile, data: "classroom_types:\n  - {key: toddler, age_bucket: nursery}\nage_buckets: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{}
			for k, v := range valid {
				fsys[k] = v
			}
			if tt.drop {
				delete(fsys, tt.file)
			} else {
				fsys[tt.file] = &fstest.MapFile{Data: []byte(tt.data)}
			}
			_, err := LoadFrom(fsys)
			assert.Error(t, err)
		})
	}
}
