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
	"flag"
	"fmt"
	"os"
	"time"

	electrum "github.com/blinklabs-io/goelectrum"
)

type globalFlags struct {
	flagset    *flag.FlagSet
	servers    string
	useTls     bool
	timeout    int
	maxServers int
}

func newGlobalFlags() *globalFlags {
	f := &globalFlags{
		flagset: flag.NewFlagSet(os.Args[0], flag.ExitOnError),
	}
	f.flagset.StringVar(
		&f.servers,
		"servers",
		"",
		"path to a JSON server catalog file",
	)
	f.flagset.BoolVar(&f.useTls, "tls", false, "connect to servers over TLS")
	f.flagset.IntVar(
		&f.timeout,
		"timeout",
		15,
		"per-request timeout in seconds",
	)
	f.flagset.IntVar(
		&f.maxServers,
		"max-servers",
		5,
		"maximum distinct hosts tried per failover sequence",
	)
	return f
}

func main() {
	f := newGlobalFlags()
	err := f.flagset.Parse(os.Args[1:])
	if err != nil {
		fmt.Printf("failed to parse command args: %s\n", err)
		os.Exit(1)
	}

	if len(f.flagset.Args()) > 0 {
		switch f.flagset.Arg(0) {
		case "version":
			runVersion(f)
		case "banner":
			runBanner(f)
		case "fee":
			runFee(f)
		case "header":
			runHeader(f)
		case "balance":
			runBalance(f)
		case "subscribe":
			runSubscribe(f)
		default:
			fmt.Printf("Unknown subcommand: %s\n", f.flagset.Arg(0))
			os.Exit(1)
		}
	} else {
		fmt.Printf("You must specify a subcommand (version, banner, fee, header, balance, or subscribe)\n")
		os.Exit(1)
	}
}

func createClient(f *globalFlags) *electrum.Client {
	if f.servers == "" {
		fmt.Printf("You must specify -servers\n\n")
		f.flagset.PrintDefaults()
		os.Exit(1)
	}
	client, err := electrum.New(
		electrum.WithServerFile(f.servers),
		electrum.WithUseTls(f.useTls),
		electrum.WithTimeout(time.Duration(f.timeout)*time.Second),
		electrum.WithMaxServers(f.maxServers),
	)
	if err != nil {
		fmt.Printf("failed to create client: %s\n", err)
		os.Exit(1)
	}
	if err := client.Connect(); err != nil {
		fmt.Printf("Connection failed: %s\n", err)
		os.Exit(1)
	}
	return client
}
