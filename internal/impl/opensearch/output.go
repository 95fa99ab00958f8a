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
	"slices"

	"github.com/opensearch-project/opensearch-go/v3/signer"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/pumpworks/bulkpump/internal/bulk"
	"github.com/pumpworks/bulkpump/internal/impl/aws/config"
)

const (
	outputName = "opensearch_bulk"

	// ESOFieldAWS is the name of the AWS request signing field.
	ESOFieldAWS = "aws"
	// ESOFieldAWSEnabled is the path of the toggle within the AWS field.
	ESOFieldAWSEnabled = "enabled"
	// ESOFieldAWSService is the signing name of the target service.
	ESOFieldAWSService = "service"
)

// AWSOptFn is populated when the AWS package is imported and creates the
// request signer for an output. It returns nil when signing is disabled.
var AWSOptFn = func(conf *service.ParsedConfig) (signer.Signer, error) {
	return nil, nil
}

func awsField() *service.ConfigField {
	return service.NewObjectField(ESOFieldAWS,
		slices.Concat(
			[]*service.ConfigField{
				service.NewBoolField(ESOFieldAWSEnabled).
					Description("Whether to sign requests with AWS credentials.").
					Default(false),
				service.NewStringField(ESOFieldAWSService).
					Description("The signing name of the service, `es` for OpenSearch Service domains and `aoss` for OpenSearch Serverless collections.").
					Default("es"),
			},
			config.SessionFields(),
		)...,
	).
		Description("Enables and customises connectivity to Amazon OpenSearch Service.").
		Advanced().
		Optional()
}

// OutputSpec returns the config spec of the opensearch_bulk output.
func OutputSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Beta().
		Categories("Services").
		Summary("Writes messages into OpenSearch indexes through the bulk API using a pool of long lived upload workers per node.").
		Description(bulk.OutputDescription).
		Fields(bulk.OutputFields()...).
		Fields(
			OAuthField(),
			awsField(),
		).
		Example("Amazon OpenSearch Service", "Here we index documents into an OpenSearch Service domain, signing requests with the credentials of an assumed role.", `
output:
  opensearch_bulk:
    urls: [ https://search-things-abc123.eu-west-1.es.amazonaws.com ]
    index: things
    tls:
      enabled: true
    aws:
      enabled: true
      region: eu-west-1
      credentials:
        role: arn:aws:iam::123456789012:role/indexer
`).
		Example("OAuth2 client credentials", "Here we authenticate with bearer tokens obtained from an identity provider.", `
output:
  opensearch_bulk:
    urls: [ https://opensearch.example.com:9200 ]
    index: things
    oauth2:
      enabled: true
      token_url: https://idp.example.com/oauth/token
      client_id: bulkpump
      client_secret: ${CLIENT_SECRET}
`)
}

func init() {
	service.MustRegisterOutput(outputName, OutputSpec(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (out service.Output, maxInFlight int, err error) {
			if maxInFlight, err = conf.FieldMaxInFlight(); err != nil {
				return
			}
			out, err = outputFromParsed(conf, mgr)
			return
		})
}

func dialerFromParsed(pConf *service.ParsedConfig, mgr *service.Resources) (*Dialer, error) {
	d := &Dialer{log: mgr.Logger()}

	var err error
	if d.Username, d.Password, _, err = bulk.BasicAuthFromParsed(pConf); err != nil {
		return nil, err
	}

	tlsConf, tlsEnabled, err := pConf.FieldTLSToggled(bulk.FieldTLS)
	if err != nil {
		return nil, err
	}
	if tlsEnabled {
		d.TLS = tlsConf
	}

	oConf, err := oAuthFromParsed(pConf)
	if err != nil {
		return nil, err
	}
	if d.TokenSource, err = oConf.TokenSource(mgr); err != nil {
		return nil, err
	}

	if pConf.Contains(ESOFieldAWS) {
		if d.Signer, err = AWSOptFn(pConf.Namespace(ESOFieldAWS)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func outputFromParsed(pConf *service.ParsedConfig, mgr *service.Resources) (*bulk.Output, error) {
	d, err := dialerFromParsed(pConf, mgr)
	if err != nil {
		return nil, err
	}
	return bulk.NewOutput(pConf, mgr, outputName, d)
}
