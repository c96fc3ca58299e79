/*
Copyright 2024 Fable Authors.

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
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fablehq/fable"
	"github.com/fablehq/fable/config"
	"github.com/fablehq/fable/database"
	"github.com/fablehq/fable/internal/notification"
)

// Fable represents the CLI application, encapsulating the root Cobra command.
type Fable struct {
	cmd *cobra.Command
}

// fableInstance holds the Fable instance and its configuration.
type fableInstance struct {
	fable *fable.Fable
	cnf   *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the Fable instance before
// running any command.
func preRun(app *fableInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("fable.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newFable, err := setupFable(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.fable = newFable
		app.cnf = cnf

		return nil
	}
}

// setupFable creates and initializes a new Fable instance based on the
// provided configuration.
func setupFable(cfg *config.Configuration) (*fable.Fable, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newFable, err := fable.NewFable(db)
	if err != nil {
		return nil, fmt.Errorf("error creating fable: %v", err)
	}
	return newFable, nil
}

// NewCLI creates the command-line interface for the Fable application.
func NewCLI() *Fable {
	var configFile string
	b := &fableInstance{}

	var rootCmd = &cobra.Command{
		Use:   "fable",
		Short: "Resilient backend for on-chain serialized stories",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./fable.json", "Configuration file for fable")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands())
	rootCmd.AddCommand(configCommands())

	return &Fable{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during
// execution.
func (w Fable) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
