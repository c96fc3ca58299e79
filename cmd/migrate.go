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
	"log"

	"github.com/spf13/cobra"

	"github.com/fablehq/fable/config"
	"github.com/fablehq/fable/database"
)

// migrateCommands returns the Cobra command that applies the database
// schema. The schema statements are idempotent, so running it against
// an existing database is safe.
func migrateCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply the fable database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "create tables",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error fetching config: %v", err)
			}

			if _, err := database.ConnectDB(conf.DataSource.Dns); err != nil {
				log.Fatalf("Error applying schema: %v", err)
			}

			log.Println("Schema applied successfully")
		},
	})

	return cmd
}
