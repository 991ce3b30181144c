// Copyright 2025 Blink Labs Software
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

package headerstore_test

import (
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/goelectrum/headerstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*headerstore.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "headers.db")
	store, err := headerstore.Open(headerstore.DefaultConfig(path))
	require.NoError(t, err)
	return store, path
}

func TestPutGetHeader(t *testing.T) {
	store, _ := openTestStore(t)
	defer store.Close()

	raw := []byte(`{"height":100,"hex":"00aa"}`)
	require.NoError(t, store.PutHeader(100, raw))

	got, err := store.GetHeader(100)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.True(t, store.HasHeader(100))
	assert.False(t, store.HasHeader(101))
}

func TestGetHeaderNotFound(t *testing.T) {
	store, _ := openTestStore(t)
	defer store.Close()

	_, err := store.GetHeader(42)
	assert.ErrorIs(t, err, headerstore.ErrHeaderNotFound)
}

func TestTipHeight(t *testing.T) {
	store, _ := openTestStore(t)
	defer store.Close()

	_, err := store.TipHeight()
	assert.ErrorIs(t, err, headerstore.ErrHeaderNotFound)

	require.NoError(t, store.PutHeader(100, []byte("a")))
	require.NoError(t, store.PutHeader(200, []byte("b")))
	// Storing below the tip doesn't move it
	require.NoError(t, store.PutHeader(150, []byte("c")))

	tip, err := store.TipHeight()
	require.NoError(t, err)
	assert.Equal(t, uint64(200), tip)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	store, path := openTestStore(t)
	require.NoError(t, store.PutHeader(7, []byte("seven")))
	require.NoError(t, store.Close())

	reopened, err := headerstore.Open(headerstore.DefaultConfig(path))
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetHeader(7)
	require.NoError(t, err)
	assert.Equal(t, []byte("seven"), got)
	tip, err := reopened.TipHeight()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), tip)
}

func TestClosedStore(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Close())
	// Close is idempotent
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.PutHeader(1, []byte("x")), headerstore.ErrClosed)
	_, err := store.GetHeader(1)
	assert.ErrorIs(t, err, headerstore.ErrClosed)
	_, err = store.TipHeight()
	assert.ErrorIs(t, err, headerstore.ErrClosed)
}
