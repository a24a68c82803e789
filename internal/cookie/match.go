package cookie

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

// UpsertCookie inserts c into the bucket for host, mutating hosts in place.
//
// Expired entries of the bucket are pruned first. A cookie that is already
// expired deletes the entry with the same (name, domain, path) triple instead
// of being stored. The triple is unique across the whole jar, so a matching
// entry filed under another host is removed as well.
func UpsertCookie(hosts Hosts, host string, c Cookie, now time.Time) {
	host = strings.ToLower(host)

	list := hosts[host]
	kept := make([]Cookie, 0, len(list)+1)
	for _, existing := range list {
		if existing.Expired(now) || existing.sameIdentity(c) {
			continue
		}
		kept = append(kept, existing)
	}

	for other, otherList := range hosts {
		if other == host {
			continue
		}
		hosts[other] = removeIdentity(otherList, c)
	}

	if !c.Expired(now) {
		kept = append(kept, c)
	}
	hosts[host] = kept
}

// BuildCookieHeader returns the Cookie header value for a request to u,
// or an empty string when no stored cookie applies.
func BuildCookieHeader(hosts Hosts, u *url.URL, now time.Time) string {
	reqHost := RequestHost(u)
	reqPath := u.EscapedPath()
	if reqPath == "" {
		reqPath = "/"
	}
	secure := strings.EqualFold(u.Scheme, "https")

	keys := make([]string, 0, len(hosts))
	for host := range hosts {
		keys = append(keys, host)
	}
	sort.Strings(keys)

	var candidates []Cookie
	for _, host := range keys {
		for _, c := range hosts[host] {
			if c.Expired(now) {
				continue
			}
			if c.Secure && !secure {
				continue
			}
			if !domainMatch(c, reqHost) || !pathMatch(c.Path, reqPath) {
				continue
			}
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return len(candidates[a].Path) > len(candidates[b].Path)
	})

	seen := make(map[string]struct{}, len(candidates))
	pairs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		pairs = append(pairs, c.Name+"="+c.Value)
	}

	return strings.Join(pairs, "; ")
}

func domainMatch(c Cookie, reqHost string) bool {
	domain := strings.ToLower(c.Domain)
	if c.HostOnly {
		return domain == reqHost
	}
	return reqHost == domain || strings.HasSuffix(reqHost, "."+domain)
}

func pathMatch(cookiePath, reqPath string) bool {
	if cookiePath == reqPath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	next := reqPath[len(cookiePath)]
	return next == '/' || next == '?'
}

func removeIdentity(list []Cookie, c Cookie) []Cookie {
	out := list[:0:0]
	for _, existing := range list {
		if !existing.sameIdentity(c) {
			out = append(out, existing)
		}
	}
	return out
}
