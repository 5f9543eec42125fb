package checklist

import (
	"fmt"
	"strings"

	"p9e.in/qareports/models"
)

// ResolveDynamicSections builds one classroom_<type> section per classroom
// type the school has at least one of. Types come out in definition order
// so the result depends only on the counts.
func (r *Registry) ResolveDynamicSections(classrooms models.ClassroomConfig) []Section {
	var sections []Section
	for _, ct := range r.classroomTypes {
		if classrooms[ct.Key] <= 0 {
			continue
		}
		sections = append(sections, Section{
			Key:           classroomPrefix + ct.Key,
			Name:          ct.Name,
			Description:   fmt.Sprintf("Ratio: %s, Group Size: %d", ct.Ratio, ct.GroupSize),
			Tier:          1,
			ClassroomType: ct.Key,
			Items:         r.classroomItems(ct),
		})
	}
	return sections
}

// ClassroomTypes lists the known classroom types.
func (r *Registry) ClassroomTypes() []ClassroomType {
	return append([]ClassroomType(nil), r.classroomTypes...)
}

// IsClassroomType reports whether key names a known classroom type.
func (r *Registry) IsClassroomType(key string) bool {
	_, ok := r.classroomType(classroomPrefix + key)
	return ok
}

func (r *Registry) classroomType(sectionKey string) (ClassroomType, bool) {
	key, ok := strings.CutPrefix(sectionKey, classroomPrefix)
	if !ok {
		return ClassroomType{}, false
	}
	for _, ct := range r.classroomTypes {
		if ct.Key == key {
			return ct, true
		}
	}
	return ClassroomType{}, false
}

// classroomItems is the common observation items followed by the items of
// the type's age bucket.
func (r *Registry) classroomItems(ct ClassroomType) []Item {
	bucket := r.ageBuckets[ct.AgeBucket]
	items := make([]Item, 0, len(r.observation)+len(bucket))
	items = append(items, r.observation...)
	return append(items, bucket...)
}
