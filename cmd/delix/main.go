// Copyright 2015 The Delix Project Authors. See the AUTHORS file at the top level directory.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/delix/delix/internal/config"
	"github.com/delix/delix/node"
)

var opt struct {
	ConfigPath string
	Help       bool
}

func init() {
	pflag.StringVarP(&opt.ConfigPath, "config", "c", "/etc/delix/node.yaml", "path to node config file")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "show this help text")
}

func main() {
	pflag.Parse()
	if opt.Help {
		fmt.Fprintf(os.Stderr, "usage: %s [options]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		os.Exit(0)
	}

	cfg, err := config.Load(opt.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building node: %v\n", err)
		os.Exit(1)
	}

	nodeID, err := n.Start()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting node: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("delix node %s listening on %s\n", nodeID, n.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	fmt.Printf("received signal %s, shutting down\n", sig)

	if err := n.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "error during shutdown: %v\n", err)
		os.Exit(1)
	}
}
