package identity

import (
	"net/url"
	"regexp"
	"strings"
)

// ATS family names used to qualify extracted job ids so that numerically
// identical ids from different providers never collide.
const (
	familyGreenhouse = "greenhouse"
	familyLever      = "lever"
	familyWorkday    = "workday"
	familyAshby      = "ashby"
)

var (
	greenhouseHostRe = regexp.MustCompile(`^(?:boards|job-boards)\.greenhouse\.io$`)
	greenhousePathRe = regexp.MustCompile(`/jobs/(\d+)(?:/|$)`)

	leverHostRe = regexp.MustCompile(`^jobs\.(?:eu\.)?lever\.co$`)
	leverPathRe = regexp.MustCompile(`^/[^/]+/([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})(?:/|$)`)

	workdayHostRe = regexp.MustCompile(`\.myworkdayjobs\.com$`)
	// Workday postings end in a requisition suffix like _JR-12345 or _R0012345.
	workdayReqRe = regexp.MustCompile(`/job/[^?#]*_([A-Za-z]{0,4}-?\d[\d-]*)$`)

	ashbyHostRe = regexp.MustCompile(`^jobs\.ashbyhq\.com$`)
	ashbyPathRe = regexp.MustCompile(`^/[^/]+/([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})(?:/|$)`)
)

// ExtractJobID pattern-matches a job posting URL against known ATS families
// and returns the family-qualified posting id (e.g. "greenhouse:12345").
// Unmatched URLs return ok=false; that is not an error.
func ExtractJobID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	path := u.Path

	switch {
	case greenhouseHostRe.MatchString(host):
		if m := greenhousePathRe.FindStringSubmatch(path); m != nil {
			return familyGreenhouse + ":" + m[1], true
		}
	case leverHostRe.MatchString(host):
		if m := leverPathRe.FindStringSubmatch(path); m != nil {
			return familyLever + ":" + strings.ToLower(m[1]), true
		}
	case workdayHostRe.MatchString(host):
		if m := workdayReqRe.FindStringSubmatch(strings.TrimSuffix(path, "/")); m != nil {
			return familyWorkday + ":" + strings.ToUpper(m[1]), true
		}
	case ashbyHostRe.MatchString(host):
		if m := ashbyPathRe.FindStringSubmatch(path); m != nil {
			return familyAshby + ":" + strings.ToLower(m[1]), true
		}
	}
	return "", false
}
