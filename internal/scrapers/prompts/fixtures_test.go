package prompts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"promptshelf/internal/components/telemetry"
)

// escapeAttr escapes the way the server does when it renders the page state
// into a double quoted attribute.
var escapeAttr = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#39;",
).Replace

func renderPage(state string) []byte {
	return []byte(`<!DOCTYPE html>
<html>
<head><title>Prompt | Shelf</title></head>
<body>
<div id="app" data-page="` + escapeAttr(state) + `"></div>
<script>window.__boot = {ready: true};</script>
</body>
</html>`)
}

const alicePageState = `{
  "component": "prompts/show",
  "props": {
    "prompt": {
      "id": 7,
      "slug": "best-books",
      "question": "What are the best books you've read (so far)?",
      "description": "Pick [up to] 5 & explain (if you want).",
      "promptBooks": [
        {"user": {"username": "alice"}, "book": {"id": 1, "title": "Dune", "image": "https://img.example/1.jpg"}},
        {"user": {"username": "bob"}, "book": {"id": 3, "title": "Not Alice's"}},
        {"user": {"username": "Alice"}, "book": {"id": 2, "title": "Emma", "image": {"url": "https://img.example/2.jpg"}, "cachedImage": {"url": "https://cache.example/2.jpg"}}}
      ]
    }
  }
}`

type fakeSite struct {
	t      testing.TB
	server *httptest.Server

	mutex sync.Mutex
	// operationName -> response body
	graphql map[string]string
	// request path -> html
	pages    map[string][]byte
	requests int
	auth     []string
}

func newFakeSite(t testing.TB) *fakeSite {
	site := &fakeSite{
		t:       t,
		graphql: map[string]string{},
		pages:   map[string][]byte{},
	}
	site.server = httptest.NewServer(http.HandlerFunc(site.handle))
	t.Cleanup(site.server.Close)
	return site
}

func (f *fakeSite) handle(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	f.requests++
	f.auth = append(f.auth, r.Header.Get("authorization"))
	f.mutex.Unlock()

	if r.URL.Path == "/graphql" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			f.t.Error(err)
			return
		}
		var req graphqlRequest
		err = json.Unmarshal(body, &req)
		if err != nil {
			f.t.Error(err)
			return
		}
		f.mutex.Lock()
		res, ok := f.graphql[req.Name]
		f.mutex.Unlock()
		if !ok {
			http.Error(w, "unknown operation", http.StatusBadRequest)
			return
		}
		w.Header().Set("content-type", "application/json")
		io.WriteString(w, res)
		return
	}

	f.mutex.Lock()
	page, ok := f.pages[r.URL.Path]
	f.mutex.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("content-type", "text/html")
	w.Write(page)
}

func (f *fakeSite) requestCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.requests
}

func (f *fakeSite) client(token string) *Client {
	return NewClient(ClientOptions{
		Host:                    f.server.URL,
		GraphqlEndpoint:         f.server.URL + "/graphql",
		Token:                   token,
		DisableCloudflareBypass: true,
	}, &telemetry.RecorderAPI{})
}
