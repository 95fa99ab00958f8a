// Copyright 2026 The Bulkpump Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package elasticsearch

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpworks/bulkpump/internal/bulk"
)

type bulkCall struct {
	path        string
	contentType string
	auth        string
	body        string
}

type fakeCluster struct {
	mu    sync.Mutex
	calls []bulkCall
}

func (f *fakeCluster) Calls() []bulkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bulkCall(nil), f.calls...)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	if r.Method == http.MethodGet && r.URL.Path == "/" {
		_, _ = w.Write([]byte(`{"name":"node-1","cluster_name":"test","version":{"number":"8.19.1"},"tagline":"You Know, for Search"}`))
		return
	}

	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/_bulk") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, _ := io.ReadAll(r.Body)
	user, pass, _ := r.BasicAuth()

	f.mu.Lock()
	f.calls = append(f.calls, bulkCall{
		path:        r.URL.Path,
		contentType: r.Header.Get("Content-Type"),
		auth:        user + ":" + pass,
		body:        string(body),
	})
	f.mu.Unlock()

	lines := strings.Count(string(body), "\n") / 2
	items := make([]string, lines)
	for i := range items {
		items[i] = `{"create":{"status":201}}`
	}
	_, _ = w.Write([]byte(`{"took":1,"errors":false,"items":[` + strings.Join(items, ",") + `]}`))
}

func TestSessionProbeAndBulk(t *testing.T) {
	cluster := &fakeCluster{}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	d := &Dialer{Username: "elastic", Password: "changeme"}
	sess, err := d.Dial(t.Context(), srv.URL+"/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	res, err := sess.Probe(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.Contains(t, string(res.Body), `"cluster_name":"test"`)

	b := bulk.NewBatch("foo", 1000)
	b.Append(bulk.Item{ID: "1", Data: []byte(`{"a":1}`)})
	b.Append(bulk.Item{Data: []byte(`{"b":2}`)})

	body := b.Reader()
	defer body.Close()

	res, err = sess.Bulk(t.Context(), "foo", body)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.JSONEq(t, `{"took":1,"errors":false,"items":[{"create":{"status":201}},{"create":{"status":201}}]}`, string(res.Body))

	calls := cluster.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/foo/_bulk", calls[0].path)
	assert.Equal(t, "application/x-ndjson", calls[0].contentType)
	assert.Equal(t, "elastic:changeme", calls[0].auth)
	assert.Equal(t, "{\"index\":{\"_id\":\"1\"}}\n{\"a\":1}\n{\"create\":{}}\n{\"b\":2}\n", calls[0].body)
}

func TestSessionStatusReturnedAsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"es_rejected_execution_exception"}`))
	}))
	t.Cleanup(srv.Close)

	sess, err := (&Dialer{}).Dial(t.Context(), srv.URL+"/")
	require.NoError(t, err)

	res, err := sess.Bulk(t.Context(), "foo", strings.NewReader("{\"create\":{}}\n{}\n"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.False(t, res.Success())
	assert.Contains(t, string(res.Body), "es_rejected_execution_exception")
}

func TestSessionUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/"
	srv.Close()

	sess, err := (&Dialer{}).Dial(t.Context(), url)
	require.NoError(t, err)

	_, err = sess.Probe(t.Context())
	require.Error(t, err)
}
