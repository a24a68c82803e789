package cookie

import (
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is returned when a Set-Cookie value has no name=value pair.
var ErrMalformed = errors.New("malformed set-cookie header")

// cookieDateLayouts are tried after http.ParseTime fails.
var cookieDateLayouts = []string{
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02-Jan-06 15:04:05 MST",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339,
}

// ParseSetCookie parses one Set-Cookie header value received for a request to u.
// Attributes are applied left to right, so the last of Max-Age and Expires wins.
// Unparsable attribute values are dropped.
func ParseSetCookie(raw string, u *url.URL, now time.Time) (Cookie, error) {
	parts := strings.Split(raw, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	eq := strings.Index(parts[0], "=")
	if eq <= 0 {
		return Cookie{}, ErrMalformed
	}
	name := strings.TrimSpace(parts[0][:eq])
	if name == "" {
		return Cookie{}, ErrMalformed
	}

	cookie := Cookie{
		Name:     name,
		Value:    strings.TrimSpace(parts[0][eq+1:]),
		Domain:   RequestHost(u),
		HostOnly: true,
		Path:     DefaultPath(u),
	}

	for _, attr := range parts[1:] {
		if attr == "" {
			continue
		}
		key, val, _ := strings.Cut(attr, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "domain":
			domain := strings.ToLower(strings.TrimPrefix(val, "."))
			if domain == "" {
				continue
			}
			cookie.Domain = domain
			cookie.HostOnly = false
		case "path":
			if strings.HasPrefix(val, "/") {
				cookie.Path = val
			} else {
				cookie.Path = "/" + val
			}
		case "max-age":
			seconds, err := strconv.ParseFloat(val, 64)
			if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
				continue
			}
			exp := addMillis(now.UnixMilli(), seconds*1000)
			cookie.ExpiresAt = &exp
		case "expires":
			t, ok := parseCookieDate(val)
			if !ok {
				continue
			}
			exp := t.UnixMilli()
			cookie.ExpiresAt = &exp
		case "secure":
			cookie.Secure = true
		case "httponly":
			cookie.HTTPOnly = true
		case "samesite":
			cookie.SameSite = val
		}
	}

	return cookie, nil
}

// DefaultPath derives the cookie path implied by the request URL.
func DefaultPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" || !strings.HasPrefix(path, "/") {
		return "/"
	}

	last := strings.LastIndex(path, "/")
	if last <= 0 {
		return "/"
	}

	return path[:last]
}

// addMillis returns base+delta, saturating at the int64 bounds.
func addMillis(base int64, delta float64) int64 {
	if delta >= float64(math.MaxInt64)-float64(base) {
		return math.MaxInt64
	}
	if delta <= float64(math.MinInt64)-float64(base) {
		return math.MinInt64
	}
	return base + int64(delta)
}

func parseCookieDate(val string) (time.Time, bool) {
	if val == "" {
		return time.Time{}, false
	}
	if t, err := http.ParseTime(val); err == nil {
		return t, true
	}
	for _, layout := range cookieDateLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
