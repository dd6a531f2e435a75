// Package identity derives stable identity for job postings: URL
// canonicalization, ATS job-id extraction, and the fingerprint cascade that
// keys the tracker store.
package identity

import (
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// trackingParams are exact query parameter names that never contribute to job
// identity. Names are matched case-insensitively; anything with a utm_ prefix
// is stripped as well.
var trackingParams = map[string]struct{}{
	"ref":          {},
	"referrer":     {},
	"source":       {},
	"src":          {},
	"gclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"mc_cid":       {},
	"mc_eid":       {},
	"gh_src":       {},
	"lever-origin": {},
}

func isTrackingParam(name string) bool {
	n := strings.ToLower(name)
	if strings.HasPrefix(n, "utm_") {
		return true
	}
	_, ok := trackingParams[n]
	return ok
}

// NormalizeURL canonicalizes a job posting URL so that two URLs differing only
// in tracking parameters, parameter order, scheme case, or a trailing slash
// collapse to the same string. The scheme is forced to https and the host is
// lower-cased. Empty input normalizes to empty. The function is idempotent.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrapf(err, "identity: parse url %q", raw)
	}

	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// Re-serialize the query with sorted keys and sorted values per key so
	// parameter order never affects identity.
	cleaned := url.Values{}
	for name, vals := range u.Query() {
		if isTrackingParam(name) {
			continue
		}
		sort.Strings(vals)
		cleaned[name] = vals
	}
	u.RawQuery = cleaned.Encode()

	// Strip a single trailing slash; the root path stays "/".
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}
