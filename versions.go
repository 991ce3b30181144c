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

import "time"

// DefaultClientName is the client identity advertised during the handshake
const DefaultClientName = "goelectrum"

// Range of ElectrumX protocol versions we speak. Both ends are advertised in
// the server.version handshake and the server picks within the range
const (
	ProtocolVersionMin = "1.4"
	ProtocolVersionMax = "1.4.2"
)

const (
	// DefaultTimeout bounds each request within a batch
	DefaultTimeout = 15 * time.Second

	// DefaultDialTimeout bounds each connection attempt
	DefaultDialTimeout = 10 * time.Second

	// DefaultMaxServers bounds the number of distinct hosts tried per
	// failover sequence
	DefaultMaxServers = 5
)
