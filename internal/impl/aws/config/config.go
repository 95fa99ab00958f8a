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

package config

import "github.com/redpanda-data/benthos/v4/public/service"

// Field names of an AWS session.
const (
	FieldRegion              = "region"
	FieldEndpoint            = "endpoint"
	FieldCredentials         = "credentials"
	FieldCredsProfile        = "profile"
	FieldCredsID             = "id"
	FieldCredsSecret         = "secret"
	FieldCredsToken          = "token"
	FieldCredsFromEC2Role    = "from_ec2_role"
	FieldCredsRole           = "role"
	FieldCredsRoleExternalID = "role_external_id"
)

// SessionFields defines the config fields of an AWS session without importing
// the AWS SDK, so that components can describe them regardless of whether
// signing support is compiled in.
func SessionFields() []*service.ConfigField {
	return []*service.ConfigField{
		service.NewStringField(FieldRegion).
			Description("The AWS region to target. When empty the region is resolved from the environment.").
			Default(""),
		service.NewStringField(FieldEndpoint).
			Description("Allows you to specify a custom endpoint for the AWS API.").
			Default("").
			Advanced(),
		service.NewObjectField(FieldCredentials,
			service.NewStringField(FieldCredsProfile).
				Description("A profile from `~/.aws/credentials` to use.").
				Default(""),
			service.NewStringField(FieldCredsID).
				Description("The ID of credentials to use.").
				Default("").Advanced(),
			service.NewStringField(FieldCredsSecret).
				Description("The secret for the credentials being used.").
				Default("").Advanced().Secret(),
			service.NewStringField(FieldCredsToken).
				Description("The token for the credentials being used, required when using short term credentials.").
				Default("").Advanced(),
			service.NewBoolField(FieldCredsFromEC2Role).
				Description("Use the credentials of a host EC2 machine configured to assume an IAM role associated with the instance.").
				Default(false),
			service.NewStringField(FieldCredsRole).
				Description("A role ARN to assume.").
				Default("").Advanced(),
			service.NewStringField(FieldCredsRoleExternalID).
				Description("An external ID to provide when assuming a role.").
				Default("").Advanced()).
			Advanced().
			Description("Optional manual configuration of AWS credentials to use, otherwise the default credential chain is used."),
	}
}
