// Package prefetch fills the cache with the reference data a field user
// needs offline and serves reads from it when the network is unavailable.
package prefetch

import (
	"context"

	"github.com/wahabsharif/premierspaces-app/backend/internal/cache"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// Remote is the subset of the API client used for reference data.
type Remote interface {
	JobTypes(ctx context.Context, userID string) ([]models.JobType, error)
	Jobs(ctx context.Context, userID, propertyID string) ([]models.Job, error)
	Categories(ctx context.Context, userID string) ([]models.Category, error)
	Files(ctx context.Context, userID string) ([]models.FileRecord, error)
	Costs(ctx context.Context, userID, jobID string) ([]models.Cost, error)
	Contractors(ctx context.Context, userID string) ([]models.Contractor, error)
	Properties(ctx context.Context, userID string) ([]models.Property, error)
}

// Connectivity reports network reachability.
type Connectivity interface {
	IsOnline(ctx context.Context) bool
}

// Resources is the read path for every cached resource. Online it fetches,
// writes through to the cache and returns fresh data. When the fetch fails
// or the device is offline it falls back to the cached copy. A session
// expiry always propagates.
type Resources struct {
	remote Remote
	cache  *cache.Cache
	conn   Connectivity
	lookup *Lookup
	log    *logging.Logger
}

// NewResources creates the read path. lookup may be nil.
func NewResources(remote Remote, c *cache.Cache, conn Connectivity, lookup *Lookup) *Resources {
	if lookup == nil {
		lookup = NewLookup()
	}
	return &Resources{
		remote: remote,
		cache:  c,
		conn:   conn,
		lookup: lookup,
		log:    logging.Component("prefetch"),
	}
}

// Lookup returns the derived name maps.
func (r *Resources) Lookup() *Lookup {
	return r.lookup
}

// read implements the online-first, cache-fallback policy for one key.
func read[T any](ctx context.Context, r *Resources, key string, fetch func(context.Context) ([]T, error), after func([]T)) ([]T, error) {
	var fetchErr error
	if r.conn == nil || r.conn.IsOnline(ctx) {
		list, err := store(ctx, r, key, fetch, after)
		if err == nil {
			return list, nil
		}
		if apperrors.IsSessionExpired(err) {
			return nil, err
		}
		fetchErr = err
	} else {
		fetchErr = apperrors.New(apperrors.ErrOffline, "offline")
	}

	list, ok, err := cache.GetValue[[]T](ctx, r.cache, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fetchErr
	}
	if !apperrors.Is(fetchErr, apperrors.ErrOffline) && !apperrors.Is(fetchErr, apperrors.ErrThrottled) {
		r.log.Warn("serving cached data after fetch failure", map[string]interface{}{
			"key": key, "error": fetchErr.Error(),
		})
	}
	if after != nil {
		after(list)
	}
	return list, nil
}

// store fetches and writes the result to the cache without any fallback.
func store[T any](ctx context.Context, r *Resources, key string, fetch func(context.Context) ([]T, error), after func([]T)) ([]T, error) {
	list, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := cache.SetValue(ctx, r.cache, key, list); err != nil {
		return nil, err
	}
	if after != nil {
		after(list)
	}
	return list, nil
}

// JobTypes returns the job types of userID.
func (r *Resources) JobTypes(ctx context.Context, userID string) ([]models.JobType, error) {
	return read(ctx, r, cache.UserKey(cache.PrefixJobTypes, userID), r.fetchJobTypes(userID), r.lookup.SetJobTypes)
}

// Jobs returns the jobs of userID.
func (r *Resources) Jobs(ctx context.Context, userID string) ([]models.Job, error) {
	return read(ctx, r, cache.UserKey(cache.PrefixJobs, userID), r.fetchJobs(userID), nil)
}

// Categories returns the upload categories of userID.
func (r *Resources) Categories(ctx context.Context, userID string) ([]models.Category, error) {
	return read(ctx, r, cache.UserKey(cache.PrefixCategories, userID), r.fetchCategories(userID), r.lookup.SetCategories)
}

// Files returns the uploaded files of userID.
func (r *Resources) Files(ctx context.Context, userID string) ([]models.FileRecord, error) {
	return read(ctx, r, cache.UserKey(cache.PrefixFiles, userID), r.fetchFiles(userID), nil)
}

// Costs returns the costs of jobID.
func (r *Resources) Costs(ctx context.Context, userID, jobID string) ([]models.Cost, error) {
	return read(ctx, r, cache.CostsKey(jobID, userID), func(ctx context.Context) ([]models.Cost, error) {
		return r.remote.Costs(ctx, userID, jobID)
	}, nil)
}

// Contractors returns the contractors visible to userID.
func (r *Resources) Contractors(ctx context.Context, userID string) ([]models.Contractor, error) {
	return read(ctx, r, cache.UserKey(cache.PrefixContractors, userID), func(ctx context.Context) ([]models.Contractor, error) {
		return r.remote.Contractors(ctx, userID)
	}, nil)
}

// Properties returns the properties visible to userID.
func (r *Resources) Properties(ctx context.Context, userID string) ([]models.Property, error) {
	return read(ctx, r, cache.UserKey(cache.PrefixProperties, userID), func(ctx context.Context) ([]models.Property, error) {
		return r.remote.Properties(ctx, userID)
	}, nil)
}

// RefreshCosts refetches the costs of jobID, bypassing the cache.
func (r *Resources) RefreshCosts(ctx context.Context, userID, jobID string) ([]models.Cost, error) {
	return store(ctx, r, cache.CostsKey(jobID, userID), func(ctx context.Context) ([]models.Cost, error) {
		return r.remote.Costs(ctx, userID, jobID)
	}, nil)
}

func (r *Resources) fetchJobTypes(userID string) func(context.Context) ([]models.JobType, error) {
	return func(ctx context.Context) ([]models.JobType, error) { return r.remote.JobTypes(ctx, userID) }
}

func (r *Resources) fetchJobs(userID string) func(context.Context) ([]models.Job, error) {
	return func(ctx context.Context) ([]models.Job, error) { return r.remote.Jobs(ctx, userID, "") }
}

func (r *Resources) fetchCategories(userID string) func(context.Context) ([]models.Category, error) {
	return func(ctx context.Context) ([]models.Category, error) { return r.remote.Categories(ctx, userID) }
}

func (r *Resources) fetchFiles(userID string) func(context.Context) ([]models.FileRecord, error) {
	return func(ctx context.Context) ([]models.FileRecord, error) { return r.remote.Files(ctx, userID) }
}

// resource is one prefetched list: its name and a fetch-and-store call.
type resource struct {
	name    string
	refresh func(ctx context.Context, userID string) error
}

// prefetched lists the resources a prefetch pass must fill.
func (r *Resources) prefetched() []resource {
	return []resource{
		{"job_types", func(ctx context.Context, userID string) error {
			return prefill(ctx, r, cache.UserKey(cache.PrefixJobTypes, userID), r.fetchJobTypes(userID), r.lookup.SetJobTypes)
		}},
		{"jobs", func(ctx context.Context, userID string) error {
			return prefill(ctx, r, cache.UserKey(cache.PrefixJobs, userID), r.fetchJobs(userID), nil)
		}},
		{"categories", func(ctx context.Context, userID string) error {
			return prefill(ctx, r, cache.UserKey(cache.PrefixCategories, userID), r.fetchCategories(userID), r.lookup.SetCategories)
		}},
		{"files", func(ctx context.Context, userID string) error {
			return prefill(ctx, r, cache.UserKey(cache.PrefixFiles, userID), r.fetchFiles(userID), nil)
		}},
	}
}

// prefill fetches and stores key. A throttled fetch counts as filled when
// key is already cached.
func prefill[T any](ctx context.Context, r *Resources, key string, fetch func(context.Context) ([]T, error), after func([]T)) error {
	_, err := store(ctx, r, key, fetch, after)
	if err == nil || !apperrors.Is(err, apperrors.ErrThrottled) {
		return err
	}
	list, ok, cerr := cache.GetValue[[]T](ctx, r.cache, key)
	if cerr != nil || !ok {
		return err
	}
	if after != nil {
		after(list)
	}
	return nil
}
