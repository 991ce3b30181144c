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

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/blinklabs-io/goelectrum/scripthash"
)

func runVersion(f *globalFlags) {
	client := createClient(f)
	defer client.Close()
	software, protocol := client.ServerVersion()
	fmt.Printf("server: %s\nprotocol: %s\n", software, protocol)
}

func runBanner(f *globalFlags) {
	client := createClient(f)
	defer client.Close()
	banner, err := client.ServerBanner()
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	fmt.Println(banner)
}

func runFee(f *globalFlags) {
	fs := flag.NewFlagSet("fee", flag.ExitOnError)
	numBlocks := fs.Int("blocks", 6, "confirmation target in blocks")
	_ = fs.Parse(f.flagset.Args()[1:])
	client := createClient(f)
	defer client.Close()
	fee, err := client.EstimateFee(*numBlocks)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	fmt.Printf("estimated fee for %d blocks: %f\n", *numBlocks, fee)
}

func runHeader(f *globalFlags) {
	fs := flag.NewFlagSet("header", flag.ExitOnError)
	height := fs.Int64("height", 0, "block height")
	_ = fs.Parse(f.flagset.Args()[1:])
	client := createClient(f)
	defer client.Close()
	headers, err := client.BlockHeaders(*height)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(headers[0], "", "  ")
	fmt.Println(string(out))
}

func runBalance(f *globalFlags) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	addr := fs.String("address", "", "wallet address")
	_ = fs.Parse(f.flagset.Args()[1:])
	if *addr == "" {
		fmt.Printf("You must specify -address\n")
		os.Exit(1)
	}
	hash, err := scripthash.FromAddress(*addr)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	client := createClient(f)
	defer client.Close()
	balances, err := client.GetBalances(map[string]string{hash: *addr})
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	for _, balance := range balances {
		fmt.Printf(
			"%s: confirmed=%d unconfirmed=%d total=%d\n",
			balance.Address,
			balance.Confirmed,
			balance.Unconfirmed,
			balance.Total,
		)
	}
}

func runSubscribe(f *globalFlags) {
	fs := flag.NewFlagSet("subscribe", flag.ExitOnError)
	addr := fs.String("address", "", "wallet address to watch (optional)")
	_ = fs.Parse(f.flagset.Args()[1:])
	client := createClient(f)
	defer client.Close()
	err := client.SubscribeHeaders(func(header json.RawMessage) {
		fmt.Printf("new header: %s\n", string(header))
	})
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		hash, err := scripthash.FromAddress(*addr)
		if err != nil {
			fmt.Printf("ERROR: %s\n", err)
			os.Exit(1)
		}
		err = client.SubscribeScripthashes(
			map[string]string{hash: *addr},
			func(address string, status string) {
				fmt.Printf("status change for %s: %s\n", address, status)
			},
		)
		if err != nil {
			fmt.Printf("ERROR: %s\n", err)
			os.Exit(1)
		}
	}
	// Block until the connection dies
	err = <-client.ErrorChan()
	fmt.Printf("connection error: %s\n", err)
	os.Exit(1)
}
