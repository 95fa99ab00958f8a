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
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/redpanda-data/benthos/v4/public/service"
)

const (
	kiFieldSeedBrokers     = "seed_brokers"
	kiFieldTopics          = "topics"
	kiFieldConsumerGroup   = "consumer_group"
	kiFieldClientID        = "client_id"
	kiFieldTLS             = "tls"
	kiFieldStartFromOldest = "start_from_oldest"
)

// Metadata keys added to consumed messages.
const (
	MetaKey           = "kafka_key"
	MetaTopic         = "kafka_topic"
	MetaPartition     = "kafka_partition"
	MetaOffset        = "kafka_offset"
	MetaTimestampUnix = "kafka_timestamp_unix"
)

func kafkaInputSpec() *service.ConfigSpec {
	return service.NewConfigSpec().
		Beta().
		Categories("Services").
		Summary("Consumes records from Kafka topics using the franz-go client library.").
		Description(`
When a consumer group is specified partitions are balanced across all clients of the group and offsets are committed once messages are acknowledged. Without a consumer group all partitions of the topics are consumed and no offsets are committed.

== Metadata

This input adds the following metadata fields to each message:

` + "```text" + `
- kafka_key (omitted for records without a key)
- kafka_topic
- kafka_partition
- kafka_offset
- kafka_timestamp_unix
- All record headers, except those named after the fields above
` + "```" + `
`).
		Fields(
			service.NewStringListField(kiFieldSeedBrokers).
				Description("A list of broker addresses to connect to. If an item of the list contains commas it will be expanded into multiple addresses.").
				Example([]string{"localhost:9092"}),
			service.NewStringListField(kiFieldTopics).
				Description("A list of topics to consume from."),
			service.NewStringField(kiFieldConsumerGroup).
				Description("An optional consumer group to consume as.").
				Default(""),
			service.NewStringField(kiFieldClientID).
				Description("An identifier for the client connection.").
				Advanced().
				Default("bulkpump"),
			service.NewTLSToggledField(kiFieldTLS),
			service.NewBoolField(kiFieldStartFromOldest).
				Description("Whether to consume from the oldest available offset when a partition has no committed offset, otherwise only new records are consumed.").
				Advanced().
				Default(true),
			service.NewAutoRetryNacksToggleField(),
		)
}

func init() {
	service.MustRegisterBatchInput("kafka", kafkaInputSpec(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.BatchInput, error) {
			in, err := inputFromParsed(conf, mgr)
			if err != nil {
				return nil, err
			}
			return service.AutoRetryNacksBatchedToggled(conf, in)
		})
}

type kafkaInput struct {
	log      *service.Logger
	opts     []kgo.Opt
	grouped  bool
	clientMu sync.Mutex
	client   *kgo.Client
}

func inputFromParsed(conf *service.ParsedConfig, mgr *service.Resources) (*kafkaInput, error) {
	in := &kafkaInput{log: mgr.Logger()}

	brokerList, err := conf.FieldStringList(kiFieldSeedBrokers)
	if err != nil {
		return nil, err
	}
	var brokers []string
	for _, b := range brokerList {
		for _, addr := range strings.Split(b, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				brokers = append(brokers, addr)
			}
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("at least one seed broker must be specified")
	}

	topics, err := conf.FieldStringList(kiFieldTopics)
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, errors.New("at least one topic must be specified")
	}

	clientID, err := conf.FieldString(kiFieldClientID)
	if err != nil {
		return nil, err
	}

	in.opts = []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topics...),
		kgo.ClientID(clientID),
		kgo.WithLogger(&kgoLogger{l: in.log}),
	}

	tlsConf, tlsEnabled, err := conf.FieldTLSToggled(kiFieldTLS)
	if err != nil {
		return nil, err
	}
	if tlsEnabled {
		in.opts = append(in.opts, kgo.DialTLSConfig(tlsConf))
	}

	oldest, err := conf.FieldBool(kiFieldStartFromOldest)
	if err != nil {
		return nil, err
	}
	if oldest {
		in.opts = append(in.opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	} else {
		in.opts = append(in.opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}

	group, err := conf.FieldString(kiFieldConsumerGroup)
	if err != nil {
		return nil, err
	}
	if group != "" {
		in.grouped = true
		in.opts = append(in.opts, kgo.ConsumerGroup(group), kgo.AutoCommitMarks())
	}
	return in, nil
}

func (k *kafkaInput) Connect(ctx context.Context) error {
	k.clientMu.Lock()
	defer k.clientMu.Unlock()
	if k.client != nil {
		return nil
	}

	client, err := kgo.NewClient(k.opts...)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return err
	}
	k.client = client
	return nil
}

func isReservedMeta(key string) bool {
	switch key {
	case MetaKey, MetaTopic, MetaPartition, MetaOffset, MetaTimestampUnix:
		return true
	}
	return false
}

func recordToMessage(r *kgo.Record) *service.Message {
	msg := service.NewMessage(r.Value)
	for _, h := range r.Headers {
		// Headers must not shadow record fields, a kafka_key header would
		// otherwise let a keyless record through key filtering.
		if isReservedMeta(h.Key) {
			continue
		}
		msg.MetaSetMut(h.Key, string(h.Value))
	}
	if r.Key != nil {
		msg.MetaSetMut(MetaKey, string(r.Key))
	}
	msg.MetaSetMut(MetaTopic, r.Topic)
	msg.MetaSetMut(MetaPartition, int(r.Partition))
	msg.MetaSetMut(MetaOffset, int(r.Offset))
	msg.MetaSetMut(MetaTimestampUnix, r.Timestamp.Unix())
	return msg
}

func (k *kafkaInput) ReadBatch(ctx context.Context) (service.MessageBatch, service.AckFunc, error) {
	k.clientMu.Lock()
	client := k.client
	k.clientMu.Unlock()
	if client == nil {
		return nil, nil, service.ErrNotConnected
	}

	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil, nil, service.ErrNotConnected
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			k.log.Errorf("Failed to fetch from %v/%v: %v", topic, partition, err)
		})

		records := fetches.Records()
		if len(records) == 0 {
			continue
		}

		batch := make(service.MessageBatch, len(records))
		for i, r := range records {
			batch[i] = recordToMessage(r)
		}
		return batch, func(ctx context.Context, err error) error {
			if err == nil && k.grouped {
				client.MarkCommitRecords(records...)
			}
			return nil
		}, nil
	}
}

func (k *kafkaInput) Close(ctx context.Context) error {
	k.clientMu.Lock()
	client := k.client
	k.client = nil
	k.clientMu.Unlock()

	if client == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		if k.grouped {
			commitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := client.CommitMarkedOffsets(commitCtx); err != nil {
				k.log.Warnf("Failed to commit marked offsets: %v", err)
			}
			cancel()
		}
		client.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
