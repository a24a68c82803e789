package cookie

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Cookie is one stored cookie attribute set.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	HostOnly bool   `json:"hostOnly"`
	Path     string `json:"path"`
	// ExpiresAt is a unix timestamp in milliseconds. Nil marks a session cookie.
	ExpiresAt *int64 `json:"expiresAt"`
	Secure    bool   `json:"secure"`
	HTTPOnly  bool   `json:"httpOnly"`
	SameSite  string `json:"sameSite"`
}

// Expired reports whether the cookie expiry is at or before now.
func (c Cookie) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && *c.ExpiresAt <= now.UnixMilli()
}

// sameIdentity compares the (name, domain, path) triple.
func (c Cookie) sameIdentity(other Cookie) bool {
	return c.Name == other.Name && c.Domain == other.Domain && c.Path == other.Path
}

// Hosts maps a lowercase request host to the cookies received from it.
// The key is an access path only; matching always uses the cookie's own domain.
type Hosts map[string][]Cookie

// Jar is a Hosts index guarded by a mutex. It is safe for concurrent use.
type Jar struct {
	mu    sync.Mutex
	hosts Hosts
}

// NewJar wraps hosts in a Jar. A nil map yields an empty jar.
func NewJar(hosts Hosts) *Jar {
	if hosts == nil {
		hosts = make(Hosts)
	}
	return &Jar{hosts: hosts}
}

// Upsert stores c under host, replacing or deleting any cookie with the same identity.
func (j *Jar) Upsert(host string, c Cookie, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()

	UpsertCookie(j.hosts, host, c, now)
}

// Header builds the Cookie header value for a request to u.
func (j *Jar) Header(u *url.URL, now time.Time) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	return BuildCookieHeader(j.hosts, u, now)
}

// Active returns every non-expired cookie, ordered by domain, path and name.
func (j *Jar) Active(now time.Time) []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	active := make([]Cookie, 0)
	for _, list := range j.hosts {
		for _, c := range list {
			if !c.Expired(now) {
				active = append(active, c)
			}
		}
	}

	sort.Slice(active, func(a, b int) bool {
		if active[a].Domain != active[b].Domain {
			return active[a].Domain < active[b].Domain
		}
		if active[a].Path != active[b].Path {
			return active[a].Path < active[b].Path
		}
		return active[a].Name < active[b].Name
	})

	return active
}

// Snapshot returns a deep copy of the jar contents.
func (j *Jar) Snapshot() Hosts {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make(Hosts, len(j.hosts))
	for host, list := range j.hosts {
		copied := make([]Cookie, len(list))
		for i, c := range list {
			if c.ExpiresAt != nil {
				exp := *c.ExpiresAt
				c.ExpiresAt = &exp
			}
			copied[i] = c
		}
		out[host] = copied
	}

	return out
}

// Len returns the number of stored cookies, expired ones included.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	var n int
	for _, list := range j.hosts {
		n += len(list)
	}
	return n
}

// RequestHost returns the lowercase host of u without the port.
func RequestHost(u *url.URL) string {
	return strings.ToLower(u.Hostname())
}
