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

package electrum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerRegistryFiltersAtLoad(t *testing.T) {
	unusable := false
	catalog := map[string]ServerEntry{
		"both.example":     {TCPPort: "50001", TLSPort: "50002"},
		"tcp-only.example": {TCPPort: "50001"},
		"tls-only.example": {TLSPort: "50002"},
		"marked.example":   {TCPPort: "50001", Usable: &unusable},
	}

	tcpRegistry := NewServerRegistry(catalog, false)
	assert.Equal(t, 2, tcpRegistry.Len())

	tlsRegistry := NewServerRegistry(catalog, true)
	assert.Equal(t, 2, tlsRegistry.Len())
}

func TestPickRandomExcludesFailedHosts(t *testing.T) {
	registry := NewServerRegistry(map[string]ServerEntry{
		"a.example": {TCPPort: "50001"},
		"b.example": {TCPPort: "50001"},
		"c.example": {TCPPort: "50001"},
	}, false)

	exclude := []string{"a.example", "c.example"}
	// Only b.example remains, whichever way the dice fall
	for i := 0; i < 10; i++ {
		server, err := registry.PickRandom(exclude)
		require.NoError(t, err)
		assert.Equal(t, "b.example", server.Host)
		assert.Equal(t, "50001", server.Port)
	}

	_, err := registry.PickRandom(
		[]string{"a.example", "b.example", "c.example"},
	)
	assert.ErrorIs(t, err, ErrNoServersAvailable)
}

func TestPickRandomRemovesPortlessEntries(t *testing.T) {
	// Constructed directly to bypass load-time filtering and exercise the
	// pick-time removal branch
	registry := &ServerRegistry{
		useTls: false,
		servers: map[string]ServerEntry{
			"broken.example": {TLSPort: "50002"},
		},
	}
	_, err := registry.PickRandom(nil)
	assert.ErrorIs(t, err, ErrNoServersAvailable)
	assert.Equal(t, 0, registry.Len())
}

func TestPickRandomEmptyRegistry(t *testing.T) {
	registry := NewServerRegistry(nil, false)
	_, err := registry.PickRandom(nil)
	assert.ErrorIs(t, err, ErrNoServersAvailable)
}

func TestNewServerRegistryFromReader(t *testing.T) {
	catalog := `{
		"electrum.example": {"t": "50001", "s": "50002", "pruning": "-", "version": "1.4"},
		"tls.example": {"s": "50002"}
	}`
	registry, err := NewServerRegistryFromReader(
		strings.NewReader(catalog),
		false,
	)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())

	server, err := registry.PickRandom(nil)
	require.NoError(t, err)
	assert.Equal(t, "electrum.example", server.Host)
	assert.Equal(t, "electrum.example:50001", server.Address())

	_, err = NewServerRegistryFromReader(strings.NewReader("not json"), false)
	assert.Error(t, err)
}

func TestNewServerRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	require.NoError(t, os.WriteFile(
		path,
		[]byte(`{"electrum.example": {"t": "50001"}}`),
		0o644,
	))
	registry, err := NewServerRegistryFromFile(path, false)
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Len())

	_, err = NewServerRegistryFromFile(
		filepath.Join(t.TempDir(), "missing.json"),
		false,
	)
	assert.Error(t, err)
}
