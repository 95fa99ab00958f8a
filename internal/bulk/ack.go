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

package bulk

import (
	"encoding/json"
	"fmt"
)

// ItemFailure describes an item rejected by the endpoint within an
// otherwise accepted batch.
type ItemFailure struct {
	// Index is the position of the item within the batch.
	Index int

	// Item is the rejected item. It is the zero value when the endpoint
	// reported more results than items were sent.
	Item Item

	// Action is the bulk action the result was reported under, e.g. create.
	Action string

	// Status is the per item status code.
	Status int

	// Reason is the raw error object reported for the item.
	Reason json.RawMessage
}

func (f ItemFailure) String() string {
	id := f.Item.ID
	if id == "" {
		id = "<auto>"
	}
	return fmt.Sprintf("item %d (id %v) %v status %d: %s", f.Index, id, f.Action, f.Status, f.Reason)
}

type bulkAck struct {
	Took   int64                          `json:"took"`
	Errors bool                           `json:"errors"`
	Items  []map[string]bulkAckItemResult `json:"items"`
}

type bulkAckItemResult struct {
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error"`
}

func (r bulkAckItemResult) failed() bool {
	return len(r.Error) > 0 && string(r.Error) != "null"
}

func parseAck(body []byte) (*bulkAck, error) {
	var ack bulkAck
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if ack.Items == nil {
		return nil, fmt.Errorf("%w: acknowledgement lacks items", ErrMalformedResponse)
	}
	return &ack, nil
}

// failures walks the per item results of the acknowledgement, which are
// reported in request order, and returns those flagged as errored.
func (a *bulkAck) failures(items []Item) []ItemFailure {
	var failed []ItemFailure
	for i, result := range a.Items {
		for action, r := range result {
			if !r.failed() {
				continue
			}
			f := ItemFailure{
				Index:  i,
				Action: action,
				Status: r.Status,
				Reason: r.Error,
			}
			if i < len(items) {
				f.Item = items[i]
			}
			failed = append(failed, f)
		}
	}
	return failed
}
