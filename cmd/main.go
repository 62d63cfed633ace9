/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/namecard/config"
)

// Namecard represents the CLI application, encapsulating the root Cobra command.
type Namecard struct {
	cmd *cobra.Command
}

// namecardInstance carries the loaded configuration into the subcommands.
type namecardInstance struct {
	cnf *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration file before any command runs. Environment
// variables override values from the file.
func preRun(app *namecardInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf
		return nil
	}
}

func NewCLI() *Namecard {
	var configFile string
	n := &namecardInstance{}

	var rootCmd = &cobra.Command{
		Use:   "namecard",
		Short: "Multi-tenant business card ingestion",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./namecard.json", "Configuration file for namecard")
	rootCmd.PersistentPreRunE = preRun(n, &configFile)

	rootCmd.AddCommand(serverCommands(n))
	rootCmd.AddCommand(workerCommands(n))
	rootCmd.AddCommand(migrateCommands(n))
	rootCmd.AddCommand(configCommands())

	return &Namecard{cmd: rootCmd}
}

func (n Namecard) executeCLI() {
	if err := n.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
