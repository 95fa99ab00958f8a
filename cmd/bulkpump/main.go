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

package main

import (
	"context"

	"github.com/redpanda-data/benthos/v4/public/service"

	_ "github.com/pumpworks/bulkpump/public/components/all"
)

var (
	Version    string
	DateBuilt  string
	BinaryName string = "bulkpump"
)

func main() {
	service.RunCLI(
		context.Background(),
		service.CLIOptSetVersion(Version, DateBuilt),
		service.CLIOptSetBinaryName(BinaryName),
		service.CLIOptSetProductName("Bulkpump"),
		service.CLIOptSetMainSchemaFrom(func() *service.ConfigSchema {
			return service.NewEnvironment().FullConfigSchema(Version, DateBuilt)
		}),
	)
}
