package cache

import "strings"

// Per-user key prefixes. A full key is the prefix followed by the user id,
// except costs which embed the job id first: costsCache_<jobID>_<userID>.
const (
	PrefixJobTypes    = "jobTypesCache_"
	PrefixJobs        = "jobsCache_"
	PrefixCategories  = "categoryCache_"
	PrefixFiles       = "filesCache_"
	PrefixCosts       = "costsCache_"
	PrefixContractors = "contractorsCache_"
	PrefixProperties  = "propertiesCache_"
)

// UserPrefixes lists every prefix whose keys belong to a single user.
var UserPrefixes = []string{
	PrefixJobTypes,
	PrefixJobs,
	PrefixCategories,
	PrefixFiles,
	PrefixCosts,
	PrefixContractors,
	PrefixProperties,
}

// UserKey returns prefix + userID.
func UserKey(prefix, userID string) string {
	return prefix + userID
}

// CostsKey returns the key for the costs of jobID fetched by userID.
func CostsKey(jobID, userID string) string {
	return PrefixCosts + jobID + "_" + userID
}

// KeyOwner extracts the user id embedded in a per-user key. ok is false
// for keys outside the known prefixes.
func KeyOwner(key string) (userID string, ok bool) {
	for _, p := range UserPrefixes {
		if !strings.HasPrefix(key, p) {
			continue
		}
		rest := key[len(p):]
		if p == PrefixCosts {
			i := strings.LastIndex(rest, "_")
			if i < 0 {
				return "", false
			}
			rest = rest[i+1:]
		}
		return rest, rest != ""
	}
	return "", false
}
