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
	"sync"
	"time"
)

// DefaultFeeCacheTtl is how long a cached fee estimate stays valid
const DefaultFeeCacheTtl = 10 * time.Minute

type feeCacheEntry struct {
	fee       float64
	expiresAt time.Time
}

// feeCache fronts the rate-limited fee estimation query with a TTL cache.
// The clock is injectable for tests
type feeCache struct {
	mutex   sync.Mutex
	now     func() time.Time
	entries map[int]feeCacheEntry
}

func newFeeCache(now func() time.Time) *feeCache {
	if now == nil {
		now = time.Now
	}
	return &feeCache{
		now:     now,
		entries: map[int]feeCacheEntry{},
	}
}

// get returns the cached fee for a confirmation target while the entry has
// not yet expired
func (f *feeCache) get(numBlocks int) (float64, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	entry, ok := f.entries[numBlocks]
	if !ok || !f.now().Before(entry.expiresAt) {
		return 0, false
	}
	return entry.fee, true
}

// put replaces the entry for a confirmation target wholesale
func (f *feeCache) put(numBlocks int, fee float64, ttl time.Duration) {
	f.mutex.Lock()
	f.entries[numBlocks] = feeCacheEntry{
		fee:       fee,
		expiresAt: f.now().Add(ttl),
	}
	f.mutex.Unlock()
}

// EstimateFeeCached returns the cached fee estimate for numBlocks if one
// exists and has not expired, issuing the underlying query otherwise
func (c *Client) EstimateFeeCached(numBlocks int, ttl time.Duration) (float64, error) {
	if fee, ok := c.fees.get(numBlocks); ok {
		return fee, nil
	}
	fee, err := c.EstimateFee(numBlocks)
	if err != nil {
		return 0, err
	}
	c.fees.put(numBlocks, fee, ttl)
	return fee, nil
}
