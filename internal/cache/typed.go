package cache

import (
	"context"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

// GetValue decodes the payload stored under key. ok is false when the key
// is missing or expired.
func GetValue[T any](ctx context.Context, c *Cache, key string) (value T, ok bool, err error) {
	e, err := c.Get(ctx, key)
	if err != nil || e == nil {
		return value, false, err
	}
	if err := e.Decode(&value); err != nil {
		return value, false, apperrors.Wrap(apperrors.ErrStorage, "cached value has unexpected shape", err)
	}
	return value, true, nil
}

// SetValue stores a typed value.
func SetValue[T any](ctx context.Context, c *Cache, key string, value T, opts ...SetOption) (int64, error) {
	return c.Set(ctx, key, value, opts...)
}
