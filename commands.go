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
)

// ServerBanner returns the server's banner text
func (c *Client) ServerBanner() (string, error) {
	data, err := c.Call("server.banner")
	if err != nil {
		return "", err
	}
	var banner string
	if err := json.Unmarshal(data, &banner); err != nil {
		return "", err
	}
	return banner, nil
}

// ServerDonationAddress returns the server's donation address
func (c *Client) ServerDonationAddress() (string, error) {
	data, err := c.Call("server.donation_address")
	if err != nil {
		return "", err
	}
	var addr string
	if err := json.Unmarshal(data, &addr); err != nil {
		return "", err
	}
	return addr, nil
}

// ServerFeatures returns the server's feature map
func (c *Client) ServerFeatures() (json.RawMessage, error) {
	return c.Call("server.features")
}

// ServerPeers returns the server's list of peer servers
func (c *Client) ServerPeers() (json.RawMessage, error) {
	return c.Call("server.peers.subscribe")
}

// EstimateFee returns the estimated fee (in coin units per kilobyte) for a
// transaction to confirm within numBlocks blocks
func (c *Client) EstimateFee(numBlocks int) (float64, error) {
	data, err := c.Call("blockchain.estimatefee", numBlocks)
	if err != nil {
		return 0, err
	}
	var fee float64
	if err := json.Unmarshal(data, &fee); err != nil {
		return 0, err
	}
	return fee, nil
}

// RelayFee returns the minimum fee the server's daemon will relay
func (c *Client) RelayFee() (float64, error) {
	data, err := c.Call("blockchain.relayfee")
	if err != nil {
		return 0, err
	}
	var fee float64
	if err := json.Unmarshal(data, &fee); err != nil {
		return 0, err
	}
	return fee, nil
}

// BroadcastTransaction submits a raw transaction to the network and returns
// its transaction hash
func (c *Client) BroadcastTransaction(rawTx string) (string, error) {
	data, err := c.Call("blockchain.transaction.broadcast", rawTx)
	if err != nil {
		return "", err
	}
	var txHash string
	if err := json.Unmarshal(data, &txHash); err != nil {
		return "", err
	}
	return txHash, nil
}

// BlockHeaders fetches the deserialized headers for the given block heights
// as one batch. If a header store is configured, each header is persisted
// under its height
func (c *Client) BlockHeaders(heights ...int64) ([]json.RawMessage, error) {
	requests := make([]Request, len(heights))
	for i, height := range heights {
		requests[i] = Request{
			Method: "blockchain.block.get_header",
			Params: []any{height},
		}
	}
	results, err := c.CallMany(requests)
	if err != nil {
		return nil, err
	}
	headers := make([]json.RawMessage, len(results))
	for i, result := range results {
		if result.Err != nil {
			return nil, newRPCError("blockchain.block.get_header", result.Err)
		}
		headers[i] = result.Data
		if c.headers != nil && heights[i] >= 0 {
			if err := c.headers.PutHeader(uint64(heights[i]), result.Data); err != nil {
				c.logger.Warn(
					"failed to persist header",
					"height", heights[i],
					"error", err,
				)
			}
		}
	}
	return headers, nil
}

// TxRef identifies a confirmed transaction by hash and block height
type TxRef struct {
	TxHash string
	Height int64
}

// MerkleProof is the merkle branch proving a transaction's inclusion in a
// block. MerkleRoot is only populated by GetMerkleWithHeaders
type MerkleProof struct {
	TxHash      string   `json:"-"`
	BlockHeight int64    `json:"block_height"`
	Pos         int      `json:"pos"`
	Merkle      []string `json:"merkle"`
	MerkleRoot  string   `json:"-"`
}

// GetMerkle fetches the merkle proofs for the given transactions as one
// batch
func (c *Client) GetMerkle(txs ...TxRef) ([]MerkleProof, error) {
	requests := make([]Request, len(txs))
	for i, tx := range txs {
		requests[i] = Request{
			Method: "blockchain.transaction.get_merkle",
			Params: []any{tx.TxHash, tx.Height},
		}
	}
	results, err := c.CallMany(requests)
	if err != nil {
		return nil, err
	}
	proofs := make([]MerkleProof, len(results))
	for i, result := range results {
		if result.Err != nil {
			return nil, newRPCError("blockchain.transaction.get_merkle", result.Err)
		}
		if err := json.Unmarshal(result.Data, &proofs[i]); err != nil {
			return nil, fmt.Errorf("malformed merkle result: %w", err)
		}
		proofs[i].TxHash = txs[i].TxHash
	}
	return proofs, nil
}

// GetMerkleWithHeaders fetches merkle proofs together with the block headers
// for their heights in a single batch, and fills in each proof's merkle root
// from the matching header
func (c *Client) GetMerkleWithHeaders(txs ...TxRef) ([]MerkleProof, error) {
	requests := make([]Request, 0, len(txs)*2)
	for _, tx := range txs {
		requests = append(requests, Request{
			Method: "blockchain.block.get_header",
			Params: []any{tx.Height},
		})
	}
	for _, tx := range txs {
		requests = append(requests, Request{
			Method: "blockchain.transaction.get_merkle",
			Params: []any{tx.TxHash, tx.Height},
		})
	}
	results, err := c.CallMany(requests)
	if err != nil {
		return nil, err
	}
	proofs := make([]MerkleProof, len(txs))
	for i := range txs {
		headerResult := results[i]
		merkleResult := results[len(txs)+i]
		if headerResult.Err != nil {
			return nil, newRPCError("blockchain.block.get_header", headerResult.Err)
		}
		if merkleResult.Err != nil {
			return nil, newRPCError("blockchain.transaction.get_merkle", merkleResult.Err)
		}
		var header struct {
			MerkleRoot string `json:"merkle_root"`
		}
		if err := json.Unmarshal(headerResult.Data, &header); err != nil {
			return nil, fmt.Errorf("malformed header result: %w", err)
		}
		if err := json.Unmarshal(merkleResult.Data, &proofs[i]); err != nil {
			return nil, fmt.Errorf("malformed merkle result: %w", err)
		}
		proofs[i].TxHash = txs[i].TxHash
		proofs[i].MerkleRoot = header.MerkleRoot
	}
	return proofs, nil
}

// GetTransactions fetches raw transactions by hash as one batch
func (c *Client) GetTransactions(txHashes ...string) ([]string, error) {
	requests := make([]Request, len(txHashes))
	for i, txHash := range txHashes {
		requests[i] = Request{
			Method: "blockchain.transaction.get",
			Params: []any{txHash},
		}
	}
	results, err := c.CallMany(requests)
	if err != nil {
		return nil, err
	}
	rawTxs := make([]string, len(results))
	for i, result := range results {
		if result.Err != nil {
			return nil, newRPCError("blockchain.transaction.get", result.Err)
		}
		if err := json.Unmarshal(result.Data, &rawTxs[i]); err != nil {
			return nil, fmt.Errorf("malformed transaction result: %w", err)
		}
	}
	return rawTxs, nil
}

// Balance is the confirmed/unconfirmed balance of one address
type Balance struct {
	Address     string `json:"-"`
	Confirmed   int64  `json:"confirmed"`
	Unconfirmed int64  `json:"unconfirmed"`
	Total       int64  `json:"-"`
}

// GetBalances fetches the balances for a set of addresses as one batch. The
// map is keyed by scripthash with the external address as value; results
// are annotated with the address
func (c *Client) GetBalances(scripthashes map[string]string) ([]Balance, error) {
	results, err := c.scripthashBatch("blockchain.scripthash.get_balance", scripthashes)
	if err != nil {
		return nil, err
	}
	balances := make([]Balance, 0, len(results))
	for _, result := range results {
		if result.Err != nil {
			return nil, newRPCError(result.Method, result.Err)
		}
		var balance Balance
		if err := json.Unmarshal(result.Data, &balance); err != nil {
			return nil, fmt.Errorf("malformed balance result: %w", err)
		}
		balance.Address = scripthashes[resultScripthash(result)]
		balance.Total = balance.Confirmed + balance.Unconfirmed
		balances = append(balances, balance)
	}
	return balances, nil
}

// HistoryItem is one confirmed or mempool transaction touching an address
type HistoryItem struct {
	Address string `json:"-"`
	TxHash  string `json:"tx_hash"`
	Height  int64  `json:"height"`
	Fee     int64  `json:"fee,omitempty"`
}

// GetHistory fetches the transaction history for a set of addresses as one
// batch, flattened into a single list annotated with addresses
func (c *Client) GetHistory(scripthashes map[string]string) ([]HistoryItem, error) {
	return c.historyShaped("blockchain.scripthash.get_history", scripthashes)
}

// GetMempool fetches the unconfirmed transactions for a set of addresses as
// one batch
func (c *Client) GetMempool(scripthashes map[string]string) ([]HistoryItem, error) {
	return c.historyShaped("blockchain.scripthash.get_mempool", scripthashes)
}

// Unspent is one unspent output belonging to an address
type Unspent struct {
	Address string `json:"-"`
	TxHash  string `json:"tx_hash"`
	TxPos   int    `json:"tx_pos"`
	Height  int64  `json:"height"`
	Value   int64  `json:"value"`
}

// GetUnspent fetches the unspent outputs for a set of addresses as one
// batch, flattened into a single list annotated with addresses
func (c *Client) GetUnspent(scripthashes map[string]string) ([]Unspent, error) {
	results, err := c.scripthashBatch("blockchain.scripthash.listunspent", scripthashes)
	if err != nil {
		return nil, err
	}
	var unspents []Unspent
	for _, result := range results {
		if result.Err != nil {
			return nil, newRPCError(result.Method, result.Err)
		}
		var forAddr []Unspent
		if err := json.Unmarshal(result.Data, &forAddr); err != nil {
			return nil, fmt.Errorf("malformed unspent result: %w", err)
		}
		addr := scripthashes[resultScripthash(result)]
		for _, u := range forAddr {
			u.Address = addr
			unspents = append(unspents, u)
		}
	}
	return unspents, nil
}

func (c *Client) historyShaped(method string, scripthashes map[string]string) ([]HistoryItem, error) {
	results, err := c.scripthashBatch(method, scripthashes)
	if err != nil {
		return nil, err
	}
	var items []HistoryItem
	for _, result := range results {
		if result.Err != nil {
			return nil, newRPCError(result.Method, result.Err)
		}
		var forAddr []HistoryItem
		if err := json.Unmarshal(result.Data, &forAddr); err != nil {
			return nil, fmt.Errorf("malformed history result: %w", err)
		}
		addr := scripthashes[resultScripthash(result)]
		for _, item := range forAddr {
			item.Address = addr
			items = append(items, item)
		}
	}
	return items, nil
}

// scripthashBatch issues one request per scripthash key
func (c *Client) scripthashBatch(method string, scripthashes map[string]string) ([]*Result, error) {
	requests := make([]Request, 0, len(scripthashes))
	for scripthash := range scripthashes {
		requests = append(requests, Request{
			Method: method,
			Params: []any{scripthash},
		})
	}
	return c.CallMany(requests)
}

// resultScripthash recovers the scripthash a result answered, from its
// request params
func resultScripthash(result *Result) string {
	if len(result.Params) < 1 {
		return ""
	}
	scripthash, _ := result.Params[0].(string)
	return scripthash
}
