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
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"sync"
)

// ServerEntry represents one host in a server catalog. The catalog format
// matches the server lists shipped with Electrum wallets: ports are strings,
// "t" is the plaintext TCP port and "s" the TLS port
type ServerEntry struct {
	TCPPort string `json:"t,omitempty"`
	TLSPort string `json:"s,omitempty"`
	Usable  *bool  `json:"usable,omitempty"`
	Version string `json:"version,omitempty"`
	Pruning string `json:"pruning,omitempty"`
}

// usable returns the entry's usable flag, defaulting to true when absent
func (e ServerEntry) usable() bool {
	return e.Usable == nil || *e.Usable
}

// port returns the entry's port for the given transport mode, which may be
// empty
func (e ServerEntry) port(useTls bool) string {
	if useTls {
		return e.TLSPort
	}
	return e.TCPPort
}

// ServerDescriptor identifies a single selected server endpoint
type ServerDescriptor struct {
	Host string
	Port string
}

// Address returns the descriptor in host:port form
func (d ServerDescriptor) Address() string {
	return net.JoinHostPort(d.Host, d.Port)
}

// ServerRegistry holds the candidate servers for one transport mode.
// Entries are loaded once and only ever removed, never re-added
type ServerRegistry struct {
	mutex   sync.Mutex
	useTls  bool
	servers map[string]ServerEntry
}

// NewServerRegistry returns a registry over the given catalog, keeping only
// entries usable for the chosen transport mode
func NewServerRegistry(catalog map[string]ServerEntry, useTls bool) *ServerRegistry {
	servers := map[string]ServerEntry{}
	for host, entry := range catalog {
		if !entry.usable() {
			continue
		}
		if entry.port(useTls) == "" {
			continue
		}
		servers[host] = entry
	}
	return &ServerRegistry{
		useTls:  useTls,
		servers: servers,
	}
}

// NewServerRegistryFromReader parses a JSON server catalog from the provided
// reader
func NewServerRegistryFromReader(r io.Reader, useTls bool) (*ServerRegistry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	catalog := map[string]ServerEntry{}
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse server catalog: %w", err)
	}
	return NewServerRegistry(catalog, useTls), nil
}

// NewServerRegistryFromFile loads a JSON server catalog from the named file
func NewServerRegistryFromFile(path string, useTls bool) (*ServerRegistry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewServerRegistryFromReader(f, useTls)
}

// Len returns the number of remaining candidate servers
func (r *ServerRegistry) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.servers)
}

// PickRandom picks uniformly at random among usable servers not present in
// the excluded host list. A picked entry missing the port required by the
// transport mode is permanently removed from the registry and the pick
// retried. Returns ErrNoServersAvailable when no candidates remain
func (r *ServerRegistry) PickRandom(exclude []string) (ServerDescriptor, error) {
	excluded := map[string]bool{}
	for _, host := range exclude {
		excluded[host] = true
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for {
		candidates := make([]string, 0, len(r.servers))
		for host := range r.servers {
			if excluded[host] {
				continue
			}
			candidates = append(candidates, host)
		}
		if len(candidates) == 0 {
			return ServerDescriptor{}, ErrNoServersAvailable
		}
		host := candidates[rand.Intn(len(candidates))]
		port := r.servers[host].port(r.useTls)
		if port == "" {
			// Structurally unusable for this transport mode
			delete(r.servers, host)
			continue
		}
		return ServerDescriptor{Host: host, Port: port}, nil
	}
}
