package web

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type sentResponse struct {
	ConnID     string
	Status     int
	StatusText string
	Headers    map[string]string
	Body       string
}

// stubSender records outbound traffic.
type stubSender struct {
	sent   []sentResponse
	closed []string
}

func (s *stubSender) Send(connID string, status int, statusText string, headers map[string]string, body []byte) error {
	s.sent = append(s.sent, sentResponse{connID, status, statusText, headers, string(body)})
	return nil
}

func (s *stubSender) Close(connID string) error {
	s.closed = append(s.closed, connID)
	return nil
}

// queueRecv scripts the requests delivered by successive Recv calls.
func queueRecv(reqs ...*Request) func() (*Request, error) {
	i := 0
	return func() (*Request, error) {
		req := reqs[i]
		i++
		return req, nil
	}
}

func newTestWeb(sender *stubSender, reqs ...*Request) *Web {
	first := &Request{ConnID: "c1", Method: "GET", Path: "/start", Kind: KindData}
	return NewWeb(first, sender, queueRecv(reqs...))
}

func TestPagePropagatesCookie(t *testing.T) {
	sender := &stubSender{}
	w := newTestWeb(sender)
	w.SetCookie("APP-42")

	require.NoError(t, w.Page("hi", 200, "OK", nil))
	require.Len(t, sender.sent, 1)
	require.Equal(t, "APP-42", sender.sent[0].Headers["set-cookie"])

	// an explicit set-cookie wins
	require.NoError(t, w.Page("hi", 200, "OK", map[string]string{"set-cookie": "other"}))
	require.Equal(t, "other", sender.sent[1].Headers["set-cookie"])
}

func TestSendWritesJSON(t *testing.T) {
	sender := &stubSender{}
	w := newTestWeb(sender)

	require.NoError(t, w.Send(map[string]string{"greeting": "hello"}))
	require.Len(t, sender.sent, 1)
	resp := sender.sent[0]
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "application/json", resp.Headers["content-type"])

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &decoded))
	require.Equal(t, "hello", decoded["greeting"])
}

func TestRecvReplacesCurrentRequest(t *testing.T) {
	sender := &stubSender{}
	next := &Request{ConnID: "c1", Method: "GET", Path: "/next", Kind: KindData}
	w := newTestWeb(sender, next)

	require.Equal(t, "/start", w.Path())
	req, err := w.Recv()
	require.NoError(t, err)
	require.Same(t, next, req)
	require.Equal(t, "/next", w.Path())
}

func TestClickReturnsPath(t *testing.T) {
	sender := &stubSender{}
	w := newTestWeb(sender, &Request{ConnID: "c1", Path: "/clicked"})

	path, err := w.Click()
	require.NoError(t, err)
	require.Equal(t, "/clicked", path)
}

func TestExpectMatch(t *testing.T) {
	sender := &stubSender{}
	w := newTestWeb(sender, &Request{ConnID: "c1", Path: "/confirm"})

	path, err := w.Expect("^/confirm$", "<p>confirm?</p>")
	require.NoError(t, err)
	require.Equal(t, "/confirm", path)
	require.False(t, w.Closed())
}

func TestExpectMismatchIsTerminal(t *testing.T) {
	sender := &stubSender{}
	w := newTestWeb(sender, &Request{ConnID: "c1", Path: "/cancel"})

	_, err := w.Expect("^/confirm$", "<p>confirm?</p>")
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, w.Closed())
	require.Equal(t, []string{"c1"}, sender.closed)

	last := sender.sent[len(sender.sent)-1]
	require.Equal(t, 404, last.Status)
	require.Equal(t, "Not Found", last.StatusText)

	// once closed, the conversation cannot resume
	_, err = w.Recv()
	require.ErrorIs(t, err, ErrClosed)
}

func TestPromptParsesForm(t *testing.T) {
	sender := &stubSender{}
	w := newTestWeb(sender, &Request{
		ConnID:  "c1",
		Method:  "POST",
		Path:    "/hello",
		Headers: map[string]string{"content-type": "application/x-www-form-urlencoded"},
		Body:    []byte("name=Ada"),
	})

	params, err := w.Prompt("<form></form>")
	require.NoError(t, err)
	require.Equal(t, "Ada", params["name"])
	require.Equal(t, 200, sender.sent[0].Status)
}

func TestRedirect(t *testing.T) {
	sender := &stubSender{}
	w := newTestWeb(sender)

	require.NoError(t, w.Redirect("/elsewhere"))
	require.Equal(t, 303, sender.sent[0].Status)
	require.Equal(t, "/elsewhere", sender.sent[0].Headers["location"])
}

func TestErrorClosesConversation(t *testing.T) {
	sender := &stubSender{}
	w := newTestWeb(sender)

	require.NoError(t, w.Error("<h1>boom</h1>", 500, "Internal Server Error"))
	require.True(t, w.Closed())
	require.Equal(t, []string{"c1"}, sender.closed)
	require.ErrorIs(t, w.Page("late", 200, "OK", nil), ErrClosed)
}
