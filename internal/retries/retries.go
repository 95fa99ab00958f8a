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
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/redpanda-data/benthos/v4/public/service"
)

const (
	boFieldInitInterval = "initial_interval"
	boFieldMaxInterval  = "max_interval"
	boFieldMultiplier   = "multiplier"
)

// BackOffField returns an object field describing an unbounded exponential
// back-off sequence.
func BackOffField(name, description, defaultInitInterval, defaultMaxInterval string) *service.ConfigField {
	return service.NewObjectField(name,
		service.NewDurationField(boFieldInitInterval).
			Description("The period to wait after the first failure.").
			Default(defaultInitInterval),
		service.NewDurationField(boFieldMaxInterval).
			Description("The maximum period to wait between consecutive failures.").
			Default(defaultMaxInterval),
		service.NewFloatField(boFieldMultiplier).
			Description("The factor by which the wait period grows after each consecutive failure.").
			Default(backoff.DefaultMultiplier),
	).
		Description(description).
		Advanced()
}

func fieldDurationOrEmptyStr(pConf *service.ParsedConfig, path ...string) (time.Duration, error) {
	if dStr, err := pConf.FieldString(path...); err == nil && dStr == "" {
		return 0, nil
	}
	return pConf.FieldDuration(path...)
}

// BackOffCtorFromParsed extracts a back-off field created with BackOffField
// from a parsed config. The sequences produced never give up.
func BackOffCtorFromParsed(pConf *service.ParsedConfig, name string) (ctor func() backoff.BackOff, err error) {
	bConf := pConf.Namespace(name)

	var initInterval, maxInterval time.Duration
	if initInterval, err = fieldDurationOrEmptyStr(bConf, boFieldInitInterval); err != nil {
		return
	}
	if maxInterval, err = fieldDurationOrEmptyStr(bConf, boFieldMaxInterval); err != nil {
		return
	}
	var multiplier float64
	if multiplier, err = bConf.FieldFloat(boFieldMultiplier); err != nil {
		return
	}

	return func() backoff.BackOff {
		if initInterval == 0 {
			return &backoff.ZeroBackOff{}
		}
		boff := backoff.NewExponentialBackOff()

		boff.InitialInterval = initInterval
		boff.MaxInterval = maxInterval
		boff.Multiplier = multiplier
		boff.MaxElapsedTime = 0
		boff.Reset()
		return boff
	}, nil
}
