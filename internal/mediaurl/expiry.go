// Package mediaurl detects expired signed media URLs and refreshes them on demand.
package mediaurl

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signedPath marks object-storage URLs whose token query parameter is a JWT.
const signedPath = "/storage/v1/object/sign/"

// IsSigned reports whether u is a signed object-storage URL that can be refreshed.
func IsSigned(u string) bool {
	return strings.Contains(u, signedPath)
}

// IsExpired reports whether a media URL is past its expiry at now.
//
// blob: and data: URLs never expire. Signed storage URLs carry a JWT in the
// token parameter whose exp claim is checked; an unreadable token counts as
// expired. Other URLs are checked against an expires parameter in Unix
// seconds. A URL that does not parse counts as expired.
func IsExpired(raw string, now time.Time) bool {
	if strings.HasPrefix(raw, "blob:") || strings.HasPrefix(raw, "data:") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return true
	}
	q := u.Query()

	if IsSigned(raw) {
		if token := q.Get("token"); token != "" {
			exp, ok := tokenExpiry(token)
			if !ok {
				return true
			}
			if !exp.IsZero() {
				return !now.Before(exp)
			}
		}
	}

	if v := q.Get("expires"); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return true
		}
		return !now.Before(time.Unix(secs, 0))
	}
	return false
}

// tokenExpiry reads the exp claim without verifying the signature; the
// storage service verifies it. A zero time means the token has no exp.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, false
	}
	if exp == nil {
		return time.Time{}, true
	}
	return exp.Time, true
}
