// Copyright 2025 Kadir Pekel
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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidateCmd checks that a config file loads and passes config.Config's
// own validation, optionally printing the expanded form with defaults
// applied -- the same shape as the teacher's validate command.
type ValidateCmd struct {
	Path        string `arg:"" name:"path" help:"Configuration file path." placeholder:"PATH"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(c.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return err
	}

	if c.PrintConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("%s is valid\n", c.Path)
	return nil
}
