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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/pumpworks/bulkpump/internal/impl/aws/config"
)

func TestGetSessionStaticCredentials(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/config")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/credentials")

	pConf, err := service.NewConfigSpec().Fields(config.SessionFields()...).ParseYAML(`
region: eu-west-1
endpoint: http://localhost:4566
credentials:
  id: AKIDEXAMPLE
  secret: wJalrXUtnFEMI
  token: session-token
`, nil)
	require.NoError(t, err)

	conf, err := GetSession(t.Context(), pConf)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", conf.Region)
	require.NotNil(t, conf.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *conf.BaseEndpoint)

	creds, err := conf.Credentials.Retrieve(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "wJalrXUtnFEMI", creds.SecretAccessKey)
	assert.Equal(t, "session-token", creds.SessionToken)
}
