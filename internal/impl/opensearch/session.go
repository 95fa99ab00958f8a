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

package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/opensearch-project/opensearch-go/v3"
	"github.com/opensearch-project/opensearch-go/v3/signer"
	"golang.org/x/oauth2"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/pumpworks/bulkpump/internal/bulk"
)

// Dialer opens OpenSearch sessions, each backed by a dedicated client and
// connection pool bound to a single node.
type Dialer struct {
	Username string
	Password string
	TLS      *tls.Config

	// TokenSource, when set, authenticates requests with OAuth2 bearer
	// tokens.
	TokenSource oauth2.TokenSource

	// Signer, when set, signs requests, e.g. with AWS SigV4.
	Signer signer.Signer

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

	var rt http.RoundTripper = transport
	if d.TokenSource != nil {
		rt = &oauth2.Transport{Source: d.TokenSource, Base: transport}
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:    []string{node},
		Username:     d.Username,
		Password:     d.Password,
		Transport:    rt,
		Signer:       d.Signer,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client for %v: %w", node, err)
	}
	return &session{client: client, transport: transport}, nil
}

type session struct {
	client    *opensearch.Client
	transport *http.Transport
}

func (s *session) Probe(ctx context.Context) (*bulk.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return nil, err
	}
	return s.perform(req)
}

func (s *session) Bulk(ctx context.Context, key string, body io.Reader) (*bulk.Response, error) {
	path := "/" + url.PathEscape(key) + "/_bulk"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	return s.perform(req)
}

func (s *session) perform(req *http.Request) (*bulk.Response, error) {
	res, err := s.client.Perform(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &bulk.Response{StatusCode: res.StatusCode, Body: body}, nil
}

func (s *session) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}
