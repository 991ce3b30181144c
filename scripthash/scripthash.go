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

// Package scripthash converts wallet addresses to the scripthash keys used
// by ElectrumX for balance/history queries and subscriptions. A scripthash
// is the sha256 of the address's output script with the byte order reversed,
// hex-encoded
package scripthash

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Output script opcodes
const (
	opDup         = 0x76
	opHash160     = 0xa9
	opEqual       = 0x87
	opEqualVerify = 0x88
	opCheckSig    = 0xac
	opData20      = 0x14
	opData32      = 0x20
	op0           = 0x00
	op1           = 0x51
)

// Base58 address version bytes (mainnet and testnet)
var (
	p2pkhVersions = map[byte]bool{0x00: true, 0x6f: true}
	p2shVersions  = map[byte]bool{0x05: true, 0xc4: true}
)

var ErrUnsupportedAddress = errors.New("unsupported address format")

// FromScript returns the ElectrumX scripthash for a raw output script
func FromScript(script []byte) string {
	digest := sha256.Sum256(script)
	// ElectrumX keys are the hash in reverse byte order
	for i, j := 0, len(digest)-1; i < j; i, j = i+1, j-1 {
		digest[i], digest[j] = digest[j], digest[i]
	}
	return hex.EncodeToString(digest[:])
}

// FromAddress returns the ElectrumX scripthash for a base58check (P2PKH,
// P2SH) or bech32 (witness v0/v1) address
func FromAddress(addr string) (string, error) {
	script, err := payScript(addr)
	if err != nil {
		return "", err
	}
	return FromScript(script), nil
}

// payScript reconstructs the output script an address pays to
func payScript(addr string) ([]byte, error) {
	if payload, version, err := base58.CheckDecode(addr); err == nil {
		if len(payload) != 20 {
			return nil, fmt.Errorf(
				"%w: base58 payload is %d bytes, expected 20",
				ErrUnsupportedAddress,
				len(payload),
			)
		}
		switch {
		case p2pkhVersions[version]:
			script := []byte{opDup, opHash160, opData20}
			script = append(script, payload...)
			return append(script, opEqualVerify, opCheckSig), nil
		case p2shVersions[version]:
			script := []byte{opHash160, opData20}
			script = append(script, payload...)
			return append(script, opEqual), nil
		default:
			return nil, fmt.Errorf(
				"%w: unknown base58 version 0x%02x",
				ErrUnsupportedAddress,
				version,
			)
		}
	}
	_, data, bech32Version, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddress, addr)
	}
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty witness payload", ErrUnsupportedAddress)
	}
	witnessVersion := data[0]
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAddress, err)
	}
	switch {
	case witnessVersion == 0 && bech32Version == bech32.Version0:
		if len(program) != 20 && len(program) != 32 {
			return nil, fmt.Errorf(
				"%w: witness v0 program is %d bytes",
				ErrUnsupportedAddress,
				len(program),
			)
		}
		script := []byte{op0, byte(len(program))}
		return append(script, program...), nil
	case witnessVersion == 1 && bech32Version == bech32.VersionM:
		if len(program) != 32 {
			return nil, fmt.Errorf(
				"%w: witness v1 program is %d bytes",
				ErrUnsupportedAddress,
				len(program),
			)
		}
		script := []byte{op1, opData32}
		return append(script, program...), nil
	default:
		return nil, fmt.Errorf(
			"%w: witness version %d",
			ErrUnsupportedAddress,
			witnessVersion,
		)
	}
}
