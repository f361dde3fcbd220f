// Package uri parses and resolves URI references: scheme, authority
// (userinfo/host/port), path, query, fragment.
package uri

import (
	"strconv"
	"strings"

	"github.com/devkeep/httpwire/pkg/httperr"
)

const (
	httpPort  uint16 = 80
	httpsPort uint16 = 443
)

// Authority is the `userinfo@host:port` component of a URI.
type Authority struct {
	UserInfo    string
	HasUserInfo bool
	Host        string
	HasHost     bool
	Port        uint16
	HasPort     bool
}

// Username returns the userinfo's username portion (the text before the
// first ':', or the whole userinfo if there is no ':'), or "" if the
// authority has no userinfo.
func (a *Authority) Username() string {
	if !a.HasUserInfo {
		return ""
	}
	user, _, _, _ := splitFirst(a.UserInfo, ":")
	return user
}

// Password returns the userinfo's password portion (the text after the
// first ':') and whether one was present.
func (a *Authority) Password() (string, bool) {
	if !a.HasUserInfo {
		return "", false
	}
	_, _, pass, hasPass := splitFirst(a.UserInfo, ":")
	return pass, hasPass
}

func (a *Authority) String() string {
	var b strings.Builder
	if a.HasUserInfo {
		b.WriteString(a.Username())
		if pass, hasPass := a.Password(); hasPass {
			b.WriteByte(':')
			b.WriteString(strings.Repeat("*", len(pass)))
		}
		b.WriteByte('@')
	}
	b.WriteString(a.Host)
	if a.HasPort {
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(a.Port), 10))
	}
	return b.String()
}

// URI is a parsed absolute or relative URI reference.
type URI struct {
	scheme      string
	authority   *Authority
	path        string
	hasPath     bool
	query       string
	hasQuery    bool
	fragment    string
	hasFragment bool
}

// Parse parses s into a URI. A missing scheme (no ':' at all) or an empty
// one (nothing before the first ':') is rejected, mirroring the reference
// grammar's requirement that a scheme always be present.
func Parse(s string) (*URI, error) {
	schemeChunk, _, uriPart, hasUriPart := splitFirst(s, ":")
	if schemeChunk == "" || !strings.Contains(s, ":") {
		return nil, httperr.NewEmptyError("uri: no scheme")
	}

	u := &URI{scheme: schemeChunk}

	if hasUriPart && strings.Contains(uriPart, "//") {
		authChunk, hasAuthChunk, rest, hasRest := splitFirst(uriPart[2:], "/")
		if hasAuthChunk {
			a, err := ParseAuthority(authChunk)
			if err != nil {
				return nil, err
			}
			u.authority = a
		}
		if hasRest {
			uriPart = "/" + rest
			hasUriPart = true
		} else {
			uriPart = ""
			hasUriPart = false
		}
	}

	path, hasPath, query, hasQuery, fragment, hasFragment := splitPathQueryFragment(uriPart, hasUriPart)
	u.path, u.hasPath = path, hasPath
	u.query, u.hasQuery = query, hasQuery
	u.fragment, u.hasFragment = fragment, hasFragment

	return u, nil
}

// ParseAuthority parses the `userinfo@host:port` component on its own.
// Bracketed IPv6 literals (`[::1]:8080`) are recognized: the host/port
// split happens at `]:` instead of the first `:`.
func ParseAuthority(s string) (*Authority, error) {
	s = removeSpaces(s)

	a := &Authority{}
	rest := s
	if strings.Contains(s, "@") {
		ui, hasUi, r, hasR := splitFirst(s, "@")
		a.UserInfo, a.HasUserInfo = ui, hasUi
		if hasR {
			rest = r
		} else {
			rest = ""
		}
	}

	var portStr string
	var hasPortStr bool

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			a.Host, a.HasHost = rest, rest != ""
		} else {
			a.Host = rest[:end+1]
			a.HasHost = a.Host != ""
			remainder := rest[end+1:]
			if strings.HasPrefix(remainder, ":") {
				portStr = remainder[1:]
				hasPortStr = portStr != ""
			}
		}
	} else {
		h, hh, p, hp := splitFirst(rest, ":")
		a.Host, a.HasHost = h, hh
		portStr, hasPortStr = p, hp
	}

	if hasPortStr {
		v, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, httperr.NewIntError("uri: invalid port "+portStr, err)
		}
		a.Port, a.HasPort = uint16(v), true
	}

	return a, nil
}

// Scheme returns the URI's scheme, e.g. "https".
func (u *URI) Scheme() string { return u.scheme }

// UserInfo returns the `user:pass` portion of the authority, or "".
func (u *URI) UserInfo() string {
	if u.authority == nil {
		return ""
	}
	return u.authority.UserInfo
}

// Host returns the authority's host, or "" if there is no authority.
func (u *URI) Host() string {
	if u.authority == nil {
		return ""
	}
	return u.authority.Host
}

// Authority returns the parsed authority, or nil if the URI has none.
func (u *URI) Authority() *Authority { return u.authority }

// Port returns the explicit port if one was given, else the scheme's
// default (443 for https, 80 otherwise).
func (u *URI) Port() uint16 {
	if u.authority != nil && u.authority.HasPort {
		return u.authority.Port
	}
	if u.scheme == "https" {
		return httpsPort
	}
	return httpPort
}

// Path returns the URI's path component, or "".
func (u *URI) Path() string { return u.path }

// Query returns the URI's query component (without the leading '?'), or "".
func (u *URI) Query() string { return u.query }

// Fragment returns the URI's fragment (without the leading '#'), or "".
func (u *URI) Fragment() string { return u.fragment }

// Resource returns the HTTP request target: path + query + fragment. When
// the URI carries an authority but no explicit path, this defaults to "/"
// so the result is always a valid request target.
func (u *URI) Resource() string {
	path := u.path
	if !u.hasPath && u.authority != nil {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(path)
	if u.hasQuery {
		b.WriteByte('?')
		b.WriteString(u.query)
	}
	if u.hasFragment {
		b.WriteByte('#')
		b.WriteString(u.fragment)
	}
	return b.String()
}

// String renders the URI back to its wire form. Any authority password is
// masked with '*' characters of the same length, so this round-trips the
// input only up to that masking.
func (u *URI) String() string {
	var b strings.Builder
	b.WriteString(u.scheme)
	b.WriteByte(':')
	if u.authority != nil {
		b.WriteString("//")
		b.WriteString(u.authority.String())
	}
	b.WriteString(u.Resource())
	return b.String()
}

// IsRelative reports whether this reference has no scheme. Parse never
// produces such a value (a missing scheme is an error), so this is always
// false for anything Parse returns; it exists for symmetry with the
// reference grammar.
func (u *URI) IsRelative() bool { return u.scheme == "" }

// Resolve resolves a possibly-relative reference (as found in a Location
// header) against this URI taken as the base, per the usual precedence:
// an absolute reference is returned as-is; otherwise scheme/authority are
// inherited from the base and the path is merged.
func Resolve(base *URI, ref string) (*URI, error) {
	r, err := tryParseAbsolute(ref)
	if err == nil && r.scheme != "" && r.authority != nil {
		return r, nil
	}

	// Not a full absolute-with-authority reference: treat it as relative
	// to base, re-parsing the pieces by hand since `ref` may lack a scheme
	// (which Parse would reject outright).
	schemeRest := ref
	var authority *Authority
	path, hasPath := "", false
	query, hasQuery := "", false
	fragment, hasFragment := "", false

	if strings.HasPrefix(ref, "//") {
		authChunk, hasAuthChunk, rest, hasRest := splitFirst(ref[2:], "/")
		if hasAuthChunk {
			a, aerr := ParseAuthority(authChunk)
			if aerr != nil {
				return nil, aerr
			}
			authority = a
		}
		if hasRest {
			schemeRest = "/" + rest
		} else {
			schemeRest = ""
		}
	} else {
		authority = base.authority
		schemeRest = ref
	}

	path, hasPath, query, hasQuery, fragment, hasFragment = splitPathQueryFragment(schemeRest, schemeRest != "")

	if hasPath && path != "" && !strings.HasPrefix(path, "/") {
		path = mergePath(base.path, path)
	} else if !hasPath || path == "" {
		path, hasPath = base.path, base.hasPath
		if !hasQuery {
			query, hasQuery = base.query, base.hasQuery
		}
	}

	return &URI{
		scheme:      base.scheme,
		authority:   authority,
		path:        path,
		hasPath:     hasPath,
		query:       query,
		hasQuery:    hasQuery,
		fragment:    fragment,
		hasFragment: hasFragment,
	}, nil
}

func tryParseAbsolute(s string) (*URI, error) {
	schemeChunk, hasScheme, _, _ := splitFirst(s, ":")
	if !hasScheme || !strings.HasPrefix(s, schemeChunk+"://") {
		return nil, httperr.NewEmptyError("uri: not absolute")
	}
	return Parse(s)
}

// mergePath merges a relative path against a base path's directory, per
// RFC 3986 §5.3's merge step (minus the dot-segment removal this library
// does not need for following redirects from real servers).
func mergePath(basePath, rel string) string {
	if basePath == "" {
		return "/" + rel
	}
	if i := strings.LastIndexByte(basePath, '/'); i >= 0 {
		return basePath[:i+1] + rel
	}
	return "/" + rel
}

func removeSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitFirst splits s at the first occurrence of sep, mirroring the
// reference parser's get_chunks: if sep is absent, the whole (non-empty)
// string is the first chunk and there is no second chunk; if sep is the
// last thing in s, the second chunk is considered absent rather than "".
func splitFirst(s, sep string) (first string, hasFirst bool, rest string, hasRest bool) {
	idx := strings.Index(s, sep)
	if idx < 0 {
		if s != "" {
			return s, true, "", false
		}
		return "", false, "", false
	}
	first = s[:idx]
	hasFirst = true
	r := s[idx+len(sep):]
	if r != "" {
		rest, hasRest = r, true
	}
	return
}

// chunkOpt is splitFirst guarded by whether a base string is even present.
func chunkOpt(base string, hasBase bool, sep string) (first string, hasFirst bool, rest string, hasRest bool) {
	if !hasBase {
		return "", false, "", false
	}
	return splitFirst(base, sep)
}

// splitPathQueryFragment splits the path/query/fragment tail of a URI per
// the reference grammar's precedence: a '?' before any '#' introduces a
// query (with the fragment, if any, split out of what follows it); a '#'
// with no preceding '?' introduces a fragment directly, with no query at
// all. Checking for '#' only after first looking for '?' would wrongly
// swallow a fragment-without-query input (e.g. "/path#frag") whole into
// path.
func splitPathQueryFragment(s string, hasS bool) (path string, hasPath bool, query string, hasQuery bool, fragment string, hasFragment bool) {
	if !hasS {
		return "", false, "", false, "", false
	}

	qIdx := strings.IndexByte(s, '?')
	hIdx := strings.IndexByte(s, '#')

	if hIdx >= 0 && (qIdx < 0 || hIdx < qIdx) {
		path, hasPath, fragment, hasFragment = splitFirst(s, "#")
		return path, hasPath, "", false, fragment, hasFragment
	}

	var afterPath string
	var hasAfterPath bool
	path, hasPath, afterPath, hasAfterPath = splitFirst(s, "?")
	query, hasQuery, fragment, hasFragment = chunkOpt(afterPath, hasAfterPath, "#")
	return path, hasPath, query, hasQuery, fragment, hasFragment
}
