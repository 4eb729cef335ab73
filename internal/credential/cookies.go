package credential

import (
	"net/url"
	"strings"
)

// Cookie is a single name/value pair as seen by a CookieReader.
type Cookie struct {
	Name  string
	Value string
}

// CookieReader is any cookie store that can look up a cookie by name and
// enumerate all cookies in order.
type CookieReader interface {
	Get(name string) (Cookie, bool)
	GetAll() []Cookie
}

// Jar is an ordered cookie mapping rebuilt from a Cookie header.
// A repeated name keeps the position of its first occurrence and the value
// of its last.
type Jar struct {
	names  []string
	values map[string]string
}

var _ CookieReader = (*Jar)(nil)

// ParseCookieHeader splits a raw Cookie header into a Jar.
// Pairs without a name or without "=" are skipped. Values keep everything
// after the first "=", so base64 padding survives.
func ParseCookieHeader(header string) *Jar {
	jar := &Jar{values: make(map[string]string)}
	if header == "" {
		return jar
	}

	for pair := range strings.SplitSeq(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if name == "" || !ok {
			continue
		}
		jar.set(name, value)
	}
	return jar
}

func (j *Jar) set(name, value string) {
	if _, exists := j.values[name]; !exists {
		j.names = append(j.names, name)
	}
	j.values[name] = value
}

// Get returns the raw value of the named cookie.
func (j *Jar) Get(name string) (Cookie, bool) {
	value, ok := j.values[name]
	if !ok {
		return Cookie{}, false
	}
	return Cookie{Name: name, Value: value}, true
}

// GetAll returns every cookie in header order.
func (j *Jar) GetAll() []Cookie {
	cookies := make([]Cookie, 0, len(j.names))
	for _, name := range j.names {
		cookies = append(cookies, Cookie{Name: name, Value: j.values[name]})
	}
	return cookies
}

// Len returns the number of distinct cookie names.
func (j *Jar) Len() int {
	return len(j.names)
}

// CookieValue returns the URL-decoded value of the named cookie in a raw
// Cookie header. An empty value counts as missing.
func CookieValue(header, name string) (string, bool) {
	if header == "" {
		return "", false
	}

	cookie, ok := ParseCookieHeader(header).Get(name)
	if !ok || cookie.Value == "" {
		return "", false
	}
	return decodeCookieValue(cookie.Value), true
}

// decodeCookieValue percent-decodes a cookie value, returning it unchanged
// when the escapes are malformed. "+" is left alone.
func decodeCookieValue(value string) string {
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return value
	}
	return decoded
}
