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

// Package all imports every component implementation that ships with
// bulkpump, along with the Benthos pure and io components needed to build
// pipelines around them.
package all

import (
	// Import Benthos core components.
	_ "github.com/redpanda-data/benthos/v4/public/components/io"
	_ "github.com/redpanda-data/benthos/v4/public/components/pure"

	// Import bulkpump components.
	_ "github.com/pumpworks/bulkpump/internal/impl/elasticsearch"
	_ "github.com/pumpworks/bulkpump/internal/impl/kafka"
	_ "github.com/pumpworks/bulkpump/internal/impl/opensearch"
	_ "github.com/pumpworks/bulkpump/internal/impl/opensearch/aws"
)
