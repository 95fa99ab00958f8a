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

package retries

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redpanda-data/benthos/v4/public/service"
)

func TestBackOffCtorFromParsed(t *testing.T) {
	spec := service.NewConfigSpec().Field(BackOffField("network_backoff", "", "1s", "30s"))

	conf, err := spec.ParseYAML(`
network_backoff:
  initial_interval: 100ms
  max_interval: 400ms
  multiplier: 2
`, nil)
	require.NoError(t, err)

	ctor, err := BackOffCtorFromParsed(conf, "network_backoff")
	require.NoError(t, err)

	boff, ok := ctor().(*backoff.ExponentialBackOff)
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, boff.InitialInterval)
	assert.Equal(t, 400*time.Millisecond, boff.MaxInterval)
	assert.Equal(t, 2.0, boff.Multiplier)
	assert.Equal(t, time.Duration(0), boff.MaxElapsedTime)

	for range 10 {
		assert.NotEqual(t, backoff.Stop, boff.NextBackOff())
	}
}

func TestBackOffCtorDefaults(t *testing.T) {
	spec := service.NewConfigSpec().Field(BackOffField("protocol_backoff", "", "10s", "5m"))

	conf, err := spec.ParseYAML(`{}`, nil)
	require.NoError(t, err)

	ctor, err := BackOffCtorFromParsed(conf, "protocol_backoff")
	require.NoError(t, err)

	boff, ok := ctor().(*backoff.ExponentialBackOff)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, boff.InitialInterval)
	assert.Equal(t, 5*time.Minute, boff.MaxInterval)
}

func TestBackOffCtorZeroInterval(t *testing.T) {
	spec := service.NewConfigSpec().Field(BackOffField("network_backoff", "", "0s", "0s"))

	conf, err := spec.ParseYAML(`{}`, nil)
	require.NoError(t, err)

	ctor, err := BackOffCtorFromParsed(conf, "network_backoff")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ctor().NextBackOff())
}
