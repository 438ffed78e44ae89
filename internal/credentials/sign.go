package credentials

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Signing protocol constants.
const (
	SignVersion      = "1.3"
	ServerAPIVersion = "1"

	HeaderSign          = "X-Ops-Sign"
	HeaderUserID        = "X-Ops-Userid"
	HeaderTimestamp     = "X-Ops-Timestamp"
	HeaderContentHash   = "X-Ops-Content-Hash"
	HeaderAPIVersion    = "X-Ops-Server-Api-Version"
	HeaderAuthorization = "X-Ops-Authorization-"

	authorizationChunk = 60
	timestampLayout    = "2006-01-02T15:04:05Z"
)

// Sign adds authentication headers for body to req, timestamped now.
func (c *Credential) Sign(req *http.Request, body []byte) error {
	return c.SignAt(req, body, time.Now())
}

// SignAt adds authentication headers for body to req using the given time.
// Previously set authorization headers are replaced.
func (c *Credential) SignAt(req *http.Request, body []byte, at time.Time) error {
	timestamp := at.UTC().Format(timestampLayout)
	contentHash := hashBody(body)

	canonical := canonicalRequest(req.Method, req.URL.Path, contentHash, timestamp, c.identity, ServerAPIVersion)
	digest := sha256.Sum256([]byte(canonical))
	sig, err := rsa.SignPKCS1v15(rand.Reader, c.key, crypto.SHA256, digest[:])
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	for name := range req.Header {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), http.CanonicalHeaderKey(HeaderAuthorization)) {
			req.Header.Del(name)
		}
	}

	req.Header.Set(HeaderSign, "algorithm=sha256;version="+SignVersion)
	req.Header.Set(HeaderUserID, c.identity)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderContentHash, contentHash)
	req.Header.Set(HeaderAPIVersion, ServerAPIVersion)

	encoded := base64.StdEncoding.EncodeToString(sig)
	for i, n := 0, 1; i < len(encoded); i, n = i+authorizationChunk, n+1 {
		end := min(i+authorizationChunk, len(encoded))
		req.Header.Set(HeaderAuthorization+strconv.Itoa(n), encoded[i:end])
	}
	return nil
}

// Verify checks the authentication headers on req against body and pub.
// Requests whose timestamp differs from now by more than skew are rejected;
// a zero skew disables the check.
func Verify(req *http.Request, body []byte, pub *rsa.PublicKey, now time.Time, skew time.Duration) error {
	if !strings.Contains(req.Header.Get(HeaderSign), "version="+SignVersion) {
		return fmt.Errorf("unsupported signing version %q", req.Header.Get(HeaderSign))
	}

	timestamp := req.Header.Get(HeaderTimestamp)
	signedAt, err := time.Parse(timestampLayout, timestamp)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", timestamp, err)
	}
	if skew > 0 {
		if d := now.Sub(signedAt); d > skew || d < -skew {
			return fmt.Errorf("request timestamp %s outside allowed skew", timestamp)
		}
	}

	contentHash := hashBody(body)
	if got := req.Header.Get(HeaderContentHash); got != contentHash {
		return fmt.Errorf("content hash mismatch")
	}

	sig, err := base64.StdEncoding.DecodeString(joinAuthorization(req.Header))
	if err != nil {
		return fmt.Errorf("invalid authorization headers: %w", err)
	}

	canonical := canonicalRequest(req.Method, req.URL.Path, contentHash, timestamp,
		req.Header.Get(HeaderUserID), req.Header.Get(HeaderAPIVersion))
	digest := sha256.Sum256([]byte(canonical))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

func joinAuthorization(h http.Header) string {
	type part struct {
		n     int
		value string
	}
	prefix := http.CanonicalHeaderKey(HeaderAuthorization)
	var parts []part
	for name, values := range h {
		if !strings.HasPrefix(name, prefix) || len(values) == 0 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil {
			continue
		}
		parts = append(parts, part{n: n, value: values[0]})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].n < parts[j].n })

	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.value)
	}
	return b.String()
}

func hashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

var repeatedSlashes = regexp.MustCompile(`/+`)

func canonicalPath(p string) string {
	p = repeatedSlashes.ReplaceAllString(p, "/")
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}

func canonicalRequest(method, path, contentHash, timestamp, userID, apiVersion string) string {
	return strings.Join([]string{
		"Method:" + strings.ToUpper(method),
		"Path:" + canonicalPath(path),
		"X-Ops-Content-Hash:" + contentHash,
		"X-Ops-Sign:version=" + SignVersion,
		"X-Ops-Timestamp:" + timestamp,
		"X-Ops-UserId:" + userID,
		"X-Ops-Server-API-Version:" + apiVersion,
	}, "\n")
}
