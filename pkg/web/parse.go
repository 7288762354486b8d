package web

import (
	"strings"
)

// URLDecode decodes a www-form-urlencoded string: '+' becomes a space and
// %XX escapes with exactly two hex digits are decoded. Malformed escapes
// pass through unchanged; decoding never fails.
func URLDecode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) {
				hi, ok1 := unhex(s[i+1])
				lo, ok2 := unhex(s[i+2])
				if ok1 && ok2 {
					b.WriteByte(hi<<4 | lo)
					i += 2
					continue
				}
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// URLParse splits a query or form-encoded string into key/value pairs.
// Segments are separated by '&' and split on the first '='; both sides are
// URL-decoded. Segments without an '=' are dropped.
func URLParse(s string) Params {
	params := Params{}
	for _, seg := range strings.Split(s, "&") {
		if seg == "" {
			continue
		}
		eq := strings.IndexByte(seg, '=')
		if eq < 0 {
			continue
		}
		params[URLDecode(seg[:eq])] = URLDecode(seg[eq+1:])
	}
	return params
}

// ParseForm decodes the request parameters: the query string for GET, the
// body for POST with content-type application/x-www-form-urlencoded, and an
// empty mapping for anything else. The raw cookie header, when present, is
// injected under the reserved CookieParam key.
func ParseForm(req *Request) Params {
	params := Params{}
	if req != nil {
		switch {
		case req.Method == "GET":
			params = URLParse(req.Query)
		case req.Method == "POST" && isFormEncoded(req.Header("content-type")):
			params = URLParse(string(req.Body))
		}
		if cookie := req.Header("cookie"); cookie != "" {
			params[CookieParam] = cookie
		}
	}
	return params
}

func isFormEncoded(contentType string) bool {
	ct := strings.TrimSpace(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return strings.EqualFold(ct, "application/x-www-form-urlencoded")
}
