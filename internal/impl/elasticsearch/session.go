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
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/elastic/elastic-transport-go/v8/elastictransport"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/pumpworks/bulkpump/internal/bulk"
)

// Dialer opens Elasticsearch sessions, each backed by a dedicated client and
// connection pool bound to a single node.
type Dialer struct {
	Username string
	Password string
	TLS      *tls.Config

	// Debug logs every request and response as a curl command to stdout.
	Debug bool

	log *service.Logger
}

var _ bulk.Dialer = (*Dialer)(nil)

// Dial creates a client for node. No request is made until the session is
// probed.
func (d *Dialer) Dial(ctx context.Context, node string) (bulk.Session, error) {
	d.log.Debugf("Opening session with %v", node)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if d.TLS != nil {
		transport.TLSClientConfig = d.TLS.Clone()
	}

	cfg := elasticsearch.Config{
		Addresses:    []string{node},
		Username:     d.Username,
		Password:     d.Password,
		Transport:    transport,
		DisableRetry: true,
	}
	if d.Debug {
		cfg.Logger = &elastictransport.CurlLogger{
			Output:             os.Stdout,
			EnableRequestBody:  true,
			EnableResponseBody: true,
		}
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating client for %v: %w", node, err)
	}
	return &session{client: client, transport: transport}, nil
}

type session struct {
	client    *elasticsearch.Client
	transport *http.Transport
}

func (s *session) Probe(ctx context.Context) (*bulk.Response, error) {
	res, err := esapi.InfoRequest{}.Do(ctx, s.client)
	if err != nil {
		return nil, err
	}
	return readResponse(res)
}

func (s *session) Bulk(ctx context.Context, key string, body io.Reader) (*bulk.Response, error) {
	res, err := esapi.BulkRequest{
		Index:  key,
		Body:   body,
		Header: http.Header{"Content-Type": []string{"application/x-ndjson"}},
	}.Do(ctx, s.client)
	if err != nil {
		return nil, err
	}
	return readResponse(res)
}

func (s *session) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

func readResponse(res *esapi.Response) (*bulk.Response, error) {
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &bulk.Response{StatusCode: res.StatusCode, Body: body}, nil
}
