package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

var ErrNotHTTP = errors.New("not an http(s) url")

// HashURL creates a SHA256 hash of a URL string.
// Used for cache keys and extraction task ids.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL resolves a possibly relative reference against base.
// Only http and https results are accepted; data: and javascript: references are rejected.
func ToAbsoluteURL(base *url.URL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrNotHTTP
	}
	relURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	abs := relURL
	if base != nil {
		abs = base.ResolveReference(relURL)
	}
	if (abs.Scheme != "http" && abs.Scheme != "https") || abs.Host == "" {
		return "", ErrNotHTTP
	}
	return abs.String(), nil
}

// IsAbsoluteHTTP reports whether raw is an absolute http(s) URL.
func IsAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
