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

package aws

import (
	"context"

	"github.com/opensearch-project/opensearch-go/v3/signer"
	"github.com/opensearch-project/opensearch-go/v3/signer/awsv2"

	"github.com/redpanda-data/benthos/v4/public/service"

	baws "github.com/pumpworks/bulkpump/internal/impl/aws"
	"github.com/pumpworks/bulkpump/internal/impl/opensearch"
)

func init() {
	opensearch.AWSOptFn = signerFromParsed
}

func signerFromParsed(conf *service.ParsedConfig) (signer.Signer, error) {
	if enabled, _ := conf.FieldBool(opensearch.ESOFieldAWSEnabled); !enabled {
		return nil, nil
	}

	sess, err := baws.GetSession(context.TODO(), conf)
	if err != nil {
		return nil, err
	}

	svc, err := conf.FieldString(opensearch.ESOFieldAWSService)
	if err != nil {
		return nil, err
	}
	return awsv2.NewSignerWithService(sess, svc)
}
