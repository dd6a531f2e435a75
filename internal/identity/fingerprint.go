package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// ErrInsufficientIdentity is returned when no cascade tier has a usable
// signal: no job id, no URL, and an all-empty company/role/location triple.
var ErrInsufficientIdentity = eris.New("insufficient identity")

// fieldDelimiter joins the free-text tier fields before hashing. A control
// character keeps "a|b"+"c" and "a"+"b|c" from colliding.
const fieldDelimiter = "\x1f"

// Fingerprint derives the stable identity string for a job posting. Signals
// are consumed in strict priority order: a provider job id wins outright, then
// the canonical URL, then the folded company/role/location triple. Lower
// tiers never contribute once a higher tier is available.
func Fingerprint(rawURL, jobID, company, roleTitle, location string) (string, error) {
	if id := strings.TrimSpace(jobID); id != "" {
		return digest(id), nil
	}

	canonical, err := NormalizeURL(rawURL)
	if err == nil && canonical != "" {
		return digest(canonical), nil
	}

	c, r, l := foldText(company), foldText(roleTitle), foldText(location)
	if c == "" && r == "" && l == "" {
		return "", eris.Wrapf(ErrInsufficientIdentity,
			"identity: fingerprint url=%q company=%q role=%q location=%q", rawURL, company, roleTitle, location)
	}
	return digest(c + fieldDelimiter + r + fieldDelimiter + l), nil
}

// FingerprintLead runs the full cascade for a raw lead, including job-id
// extraction from the normalized URL.
func FingerprintLead(url, company, roleTitle, location string) (string, error) {
	canonical, err := NormalizeURL(url)
	if err != nil {
		canonical = ""
	}
	jobID, _ := ExtractJobID(canonical)
	return Fingerprint(canonical, jobID, company, roleTitle, location)
}

// URLFingerprint derives a fingerprint from the URL alone. Job-id extraction
// still applies (the id is part of the URL); the free-text tier never does.
func URLFingerprint(rawURL string) (string, error) {
	canonical, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	if canonical == "" {
		return "", eris.Wrap(ErrInsufficientIdentity, "identity: url fingerprint of empty url")
	}
	if jobID, ok := ExtractJobID(canonical); ok {
		return digest(jobID), nil
	}
	return digest(canonical), nil
}

// foldText trims, NFKC-normalizes, and lower-cases a free-text field so that
// case, whitespace, and unicode compatibility differences collapse.
func foldText(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
