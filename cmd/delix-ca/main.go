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

// Command delix-ca generates the certificate authority and node
// certificates used by the mesh's optional mutual-TLS transport mode.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/delix/delix/internal/ca"
)

var opt struct {
	Help      bool
	OutputDir string
	Validity  time.Duration
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "show this help text")
	pflag.StringVarP(&opt.OutputDir, "output", "o", ".", "directory to write generated PEM files into")
	pflag.DurationVar(&opt.Validity, "validity", 365*24*time.Hour, "validity period for the generated certificate")
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [options] <generate-ca|issue-node> [args]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
}

func main() {
	pflag.Parse()
	if opt.Help || pflag.NArg() < 1 {
		usage()
		if opt.Help {
			os.Exit(0)
		}
		os.Exit(2)
	}

	var err error
	switch cmd := pflag.Arg(0); cmd {
	case "generate-ca":
		err = generateCA()
	case "issue-node":
		if pflag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "error: issue-node requires a node name argument")
			os.Exit(2)
		}
		err = issueNode(pflag.Arg(1))
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func generateCA() error {
	authority, err := ca.Generate(opt.Validity)
	if err != nil {
		return fmt.Errorf("generating authority: %w", err)
	}
	if err := writeFile(opt.OutputDir, "ca.pem", authority.CertPEM); err != nil {
		return err
	}
	if err := writeFile(opt.OutputDir, "ca-key.pem", authority.KeyPEM); err != nil {
		return err
	}
	fmt.Printf("wrote %s/ca.pem and %s/ca-key.pem\n", opt.OutputDir, opt.OutputDir)
	return nil
}

func issueNode(name string) error {
	caCertPEM, err := os.ReadFile(opt.OutputDir + "/ca.pem")
	if err != nil {
		return fmt.Errorf("reading ca.pem (run generate-ca first): %w", err)
	}
	caKeyPEM, err := os.ReadFile(opt.OutputDir + "/ca-key.pem")
	if err != nil {
		return fmt.Errorf("reading ca-key.pem (run generate-ca first): %w", err)
	}

	authority, err := ca.LoadAuthority(caCertPEM, caKeyPEM)
	if err != nil {
		return fmt.Errorf("loading authority: %w", err)
	}

	certPEM, keyPEM, err := authority.IssueNodeCertificate(name, opt.Validity)
	if err != nil {
		return fmt.Errorf("issuing node certificate: %w", err)
	}

	certFile := name + ".pem"
	keyFile := name + "-key.pem"
	if err := writeFile(opt.OutputDir, certFile, certPEM); err != nil {
		return err
	}
	if err := writeFile(opt.OutputDir, keyFile, keyPEM); err != nil {
		return err
	}
	fmt.Printf("wrote %s/%s and %s/%s\n", opt.OutputDir, certFile, opt.OutputDir, keyFile)
	return nil
}

func writeFile(dir, name string, data []byte) error {
	path := dir + "/" + name
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
