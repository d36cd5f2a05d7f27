package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// URLHashLen is the number of hex characters kept from the SHA-256 of the
// canonical URL. 16 bytes of digest is plenty for a dedup key.
const URLHashLen = 32

// CanonicalURL normalizes a URL for fingerprinting: lowercased scheme and
// host, no fragment, no trailing slash on the path. Unparseable input is
// returned trimmed, so hashing still works on garbage URLs.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// URLHash is the fingerprint key: truncated hex SHA-256 of the canonical URL.
func URLHash(raw string) string {
	sum := sha256.Sum256([]byte(CanonicalURL(raw)))
	return hex.EncodeToString(sum[:])[:URLHashLen]
}

// ContentHash fingerprints atom content for in-session duplicate collapse.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])[:URLHashLen]
}

// DetectSourceType guesses the source type from the URL shape. PDF wins on
// extension, forum on common thread path markers, otherwise html. Plain
// .txt files map to text.
func DetectSourceType(raw string) SourceType {
	lower := strings.ToLower(raw)
	path := lower
	if u, err := url.Parse(lower); err == nil && u.Path != "" {
		path = u.Path
	}
	switch {
	case strings.HasSuffix(path, ".pdf"):
		return SourcePDF
	case strings.HasSuffix(path, ".txt"), strings.HasSuffix(path, ".md"):
		return SourceText
	case strings.Contains(lower, "/forum"), strings.Contains(lower, "/thread"),
		strings.Contains(lower, "/topic"), strings.Contains(lower, "viewtopic"):
		return SourceForum
	default:
		return SourceHTML
	}
}
