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
	"os"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/pumpworks/bulkpump/internal/bulk"
)

const outputName = "elasticsearch_bulk"

func outputSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Beta().
		Categories("Services").
		Summary("Writes messages into Elasticsearch indexes through the bulk API using a pool of long lived upload workers per node.").
		Description(bulk.OutputDescription + `

### Debugging

Setting the environment variable ` + "`BULKPUMP_ELASTICSEARCH_DEBUG`" + ` to any value logs each request and response made to Elasticsearch as a curl command to stdout.`).
		Fields(bulk.OutputFields()...).
		Example("Indexing logs", "Here we read JSON log lines from stdin and write them into a daily index, letting Elasticsearch assign document IDs.", `
input:
  stdin: {}
output:
  elasticsearch_bulk:
    urls: [ http://localhost:9200 ]
    index: logs-${! now().ts_format("2006-01-02") }
`).
		Example("Indexing documents by ID", "Here we consume a Kafka topic and index documents under an ID taken from the message, so that redeliveries overwrite rather than duplicate documents.", `
input:
  kafka:
    seed_brokers: [ localhost:9092 ]
    topics: [ things ]
    consumer_group: bulkpump
  processors:
    - kafka_key_filter:
        keys: [ thing ]
output:
  elasticsearch_bulk:
    urls: [ "http://es1:9200,http://es2:9200" ]
    index: things
    id: ${! json("id") }
    workers_per_url: 8
`)
}

func init() {
	service.MustRegisterOutput(outputName, outputSpec(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (out service.Output, maxInFlight int, err error) {
			if maxInFlight, err = conf.FieldMaxInFlight(); err != nil {
				return
			}
			out, err = outputFromParsed(conf, mgr)
			return
		})
}

func dialerFromParsed(pConf *service.ParsedConfig, mgr *service.Resources) (*Dialer, error) {
	d := &Dialer{
		Debug: os.Getenv("BULKPUMP_ELASTICSEARCH_DEBUG") != "",
		log:   mgr.Logger(),
	}

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
	return d, nil
}

func outputFromParsed(pConf *service.ParsedConfig, mgr *service.Resources) (*bulk.Output, error) {
	d, err := dialerFromParsed(pConf, mgr)
	if err != nil {
		return nil, err
	}
	return bulk.NewOutput(pConf, mgr, outputName, d)
}
