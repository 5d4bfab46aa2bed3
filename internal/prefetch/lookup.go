package prefetch

import (
	"sync"

	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// Lookup holds id to name maps derived from the cached category and job
// type lists. The maps are rebuilt whenever those lists are written.
type Lookup struct {
	mu            sync.RWMutex
	categories    map[string]string
	subCategories map[string]string
	jobTypes      map[string]string
}

// NewLookup creates empty maps.
func NewLookup() *Lookup {
	return &Lookup{
		categories:    map[string]string{},
		subCategories: map[string]string{},
		jobTypes:      map[string]string{},
	}
}

// SetCategories rebuilds the category and subcategory maps.
func (l *Lookup) SetCategories(list []models.Category) {
	cats := make(map[string]string, len(list))
	subs := make(map[string]string)
	for _, c := range list {
		cats[c.ID.String()] = c.Name
		for _, s := range c.SubCategories {
			subs[s.ID.String()] = s.Name
		}
	}

	l.mu.Lock()
	l.categories = cats
	l.subCategories = subs
	l.mu.Unlock()
}

// SetJobTypes rebuilds the job type map.
func (l *Lookup) SetJobTypes(list []models.JobType) {
	types := make(map[string]string, len(list))
	for _, t := range list {
		types[t.ID.String()] = t.Name
	}

	l.mu.Lock()
	l.jobTypes = types
	l.mu.Unlock()
}

// CategoryName returns the name of category id.
func (l *Lookup) CategoryName(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	name, ok := l.categories[id]
	return name, ok
}

// SubCategoryName returns the name of subcategory id.
func (l *Lookup) SubCategoryName(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	name, ok := l.subCategories[id]
	return name, ok
}

// JobTypeName returns the name of job type id.
func (l *Lookup) JobTypeName(id string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	name, ok := l.jobTypes[id]
	return name, ok
}
