package web

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURLDecode(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"a+b", "a b"},
		{"a%20b", "a b"},
		{"%41%62%63", "Abc"},
		{"100%", "100%"},     // bare percent passes through
		{"%2", "%2"},         // truncated escape passes through
		{"%zz", "%zz"},       // non-hex escape passes through
		{"%2Bplus", "+plus"}, // decoded plus stays a plus
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, URLDecode(tc.in), "input %q", tc.in)
	}
}

func TestURLParse(t *testing.T) {
	params := URLParse("name=Ada&greeting=hello+there&flag")
	require.Equal(t, Params{
		"name":     "Ada",
		"greeting": "hello there",
	}, params)

	require.Empty(t, URLParse(""))
	require.Equal(t, Params{"a": "b=c"}, URLParse("a=b=c"))
}

func TestURLParseRoundTrip(t *testing.T) {
	in := Params{"name": "Ada Lovelace", "lang": "go"}
	encoded := "name=Ada+Lovelace&lang=go"
	require.Equal(t, in, URLParse(encoded))
}

func TestParseFormGet(t *testing.T) {
	req := &Request{Method: "GET", Path: "/hello", Query: "name=Ada"}
	require.Equal(t, Params{"name": "Ada"}, ParseForm(req))
}

func TestParseFormPost(t *testing.T) {
	req := &Request{
		Method:  "POST",
		Headers: map[string]string{"content-type": "application/x-www-form-urlencoded; charset=utf-8"},
		Body:    []byte("name=Bob&x=1"),
	}
	require.Equal(t, Params{"name": "Bob", "x": "1"}, ParseForm(req))
}

func TestParseFormOtherMethods(t *testing.T) {
	req := &Request{Method: "PUT", Body: []byte("name=Bob")}
	require.Empty(t, ParseForm(req))

	req = &Request{Method: "POST", Headers: map[string]string{"content-type": "application/json"}, Body: []byte(`{}`)}
	require.Empty(t, ParseForm(req))
}

func TestParseFormInjectsCookie(t *testing.T) {
	req := &Request{Method: "GET", Query: "a=1", Headers: map[string]string{"cookie": "APP-123"}}
	params := ParseForm(req)
	require.Equal(t, "1", params["a"])
	require.Equal(t, "APP-123", params[CookieParam])
}

func TestRequestHeaderCaseInsensitive(t *testing.T) {
	req := &Request{}
	req.SetHeader("Content-Type", "text/html")
	require.Equal(t, "text/html", req.Header("content-type"))
	require.Equal(t, "text/html", req.Header("CONTENT-TYPE"))
	require.Equal(t, "", req.Header("missing"))
}
