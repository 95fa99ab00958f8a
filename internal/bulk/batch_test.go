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
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchCapacity(t *testing.T) {
	b := NewBatch("foo", 100)
	assert.Equal(t, "foo", b.Key())
	assert.Equal(t, 100, b.Remaining())
	assert.False(t, b.IsFull())

	assert.False(t, b.Append(item("a", 40)))
	assert.Equal(t, 60, b.Remaining())
	assert.False(t, b.Append(item("b", 40)))
	assert.Equal(t, 20, b.Remaining())

	assert.True(t, b.Append(item("c", 40)))
	assert.Equal(t, -20, b.Remaining())
	assert.True(t, b.IsFull())
	assert.Equal(t, 3, b.Len())
}

func TestBatchExactCapacityIsFull(t *testing.T) {
	b := NewBatch("foo", 10)
	assert.True(t, b.Append(item("a", 10)))
	assert.Equal(t, 0, b.Remaining())
}

func TestBatchAgeResetsOnAppend(t *testing.T) {
	b := NewBatch("foo", 100)
	b.Append(item("a", 1))
	assert.Equal(t, 1, b.tick())
	assert.Equal(t, 2, b.tick())

	b.Append(item("b", 1))
	assert.Equal(t, 0, b.Age())
	assert.Equal(t, 1, b.tick())
}

func TestBatchSerialize(t *testing.T) {
	b := NewBatch("foo", 1000)
	b.Append(Item{Data: []byte(`{"a":1}`)})
	b.Append(Item{ID: "doc-2", Data: []byte("{\"b\":2}\n")})
	b.Append(Item{ID: `quo"te`, Data: []byte(`{"c":3}`)})

	var buf bytes.Buffer
	for chunk := range b.Serialize() {
		buf.Write(chunk)
	}

	assert.Equal(t, "{\"create\":{}}\n"+
		"{\"a\":1}\n"+
		"{\"index\":{\"_id\":\"doc-2\"}}\n"+
		"{\"b\":2}\n"+
		"{\"index\":{\"_id\":\"quo\\\"te\"}}\n"+
		"{\"c\":3}\n", buf.String())
}

func TestBatchSerializeEmptyPayload(t *testing.T) {
	b := NewBatch("foo", 1000)
	b.Append(Item{})

	var chunks []string
	for chunk := range b.Serialize() {
		chunks = append(chunks, string(chunk))
	}
	assert.Equal(t, []string{"{\"create\":{}}\n", "\n"}, chunks)
}

func TestBatchSerializeStopsEarly(t *testing.T) {
	b := NewBatch("foo", 1000)
	for range 5 {
		b.Append(item("", 3))
	}

	var n int
	for range b.Serialize() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestBatchReaderMatchesSerialize(t *testing.T) {
	b := NewBatch("foo", 1000)
	b.Append(Item{ID: "1", Data: []byte(`{"hello":"world"}`)})
	b.Append(Item{Data: []byte("{\"hello\":\"there\"}\n")})
	b.Append(Item{ID: "3", Data: []byte(`{}`)})

	var expected bytes.Buffer
	for chunk := range b.Serialize() {
		expected.Write(chunk)
	}

	r := b.Reader()
	actual, err := io.ReadAll(iotest.OneByteReader(r))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, expected.String(), string(actual))

	require.NoError(t, iotest.TestReader(b.Reader(), expected.Bytes()))
}

func TestBatchReaderCloseEarly(t *testing.T) {
	b := NewBatch("foo", 1000)
	b.Append(item("1", 10))
	b.Append(item("2", 10))

	r := b.Reader()
	p := make([]byte, 4)
	_, err := r.Read(p)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Read(p)
	assert.Equal(t, io.EOF, err)
}

func TestBatchRelease(t *testing.T) {
	b := NewBatch("foo", 1000)
	b.Append(item("1", 10))
	b.Release()
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Items())
}
