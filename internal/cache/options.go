package cache

import "time"

type setOptions struct {
	ttl   time.Duration
	isSet bool
}

// SetOption configures a single write.
type SetOption func(*setOptions)

// ExpiresIn sets the entry lifetime. Zero means the entry never expires.
func ExpiresIn(d time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = d
		o.isSet = true
	}
}

// NeverExpires stores the entry without expiry.
func NeverExpires() SetOption {
	return ExpiresIn(0)
}

// expiry returns the expires_at column value for a write at nowMs.
func (c *Cache) expiry(nowMs int64, opts []SetOption) int64 {
	o := setOptions{ttl: c.opts.DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.isSet && o.ttl == 0 {
		return 0
	}
	return nowMs + o.ttl.Milliseconds()
}
