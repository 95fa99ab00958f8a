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

package kafka

import (
	"context"
	"fmt"

	"github.com/redpanda-data/benthos/v4/public/service"
)

const (
	kfpFieldKeys    = "keys"
	kfpFieldKeyMeta = "key_meta"
)

func keyFilterProcSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Beta().
		Categories("Utility").
		Summary("Drops messages whose Kafka record key is not within an allow-list.").
		Description(`
The key is read from a metadata field, which the `+"`kafka`"+` input populates as `+"`kafka_key`"+`. Messages without the metadata field, such as records produced without a key, are always dropped.`).
		Fields(
			service.NewStringListField(kfpFieldKeys).
				Description("The record keys to keep.").
				Example([]string{"orders", "refunds"}),
			service.NewStringField(kfpFieldKeyMeta).
				Description("The metadata field holding the record key.").
				Advanced().
				Default(MetaKey),
		).
		Example("Keep Specific Keys", "Forward only order events to the cluster.", `
pipeline:
  processors:
    - kafka_key_filter:
        keys: [ orders ]
`)
}

func init() {
	err := service.RegisterProcessor(
		"kafka_key_filter", keyFilterProcSpec(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return keyFilterProcFromParsed(conf, mgr)
		})
	if err != nil {
		panic(err)
	}
}

type keyFilterProc struct {
	log     *service.Logger
	keys    map[string]struct{}
	keyMeta string
	dropped *service.MetricCounter
}

func keyFilterProcFromParsed(pConf *service.ParsedConfig, mgr *service.Resources) (*keyFilterProc, error) {
	keys, err := pConf.FieldStringList(kfpFieldKeys)
	if err != nil {
		return nil, err
	}
	keyMeta, err := pConf.FieldString(kfpFieldKeyMeta)
	if err != nil {
		return nil, err
	}
	if keyMeta == "" {
		return nil, fmt.Errorf("field %v must not be empty", kfpFieldKeyMeta)
	}

	p := &keyFilterProc{
		log:     mgr.Logger(),
		keys:    make(map[string]struct{}, len(keys)),
		keyMeta: keyMeta,
		dropped: mgr.Metrics().NewCounter("kafka_key_filter_dropped"),
	}
	for _, k := range keys {
		p.keys[k] = struct{}{}
	}
	return p, nil
}

func metaString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}

func (p *keyFilterProc) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	if v, exists := msg.MetaGetMut(p.keyMeta); exists && v != nil {
		if _, keep := p.keys[metaString(v)]; keep {
			return service.MessageBatch{msg}, nil
		}
	}
	p.dropped.Incr(1)
	return nil, nil
}

func (p *keyFilterProc) Close(ctx context.Context) error {
	return nil
}
