// redmesh - peripheral-proxy fabric
// Copyright (C) 2025 redmesh-project
//
// This file is part of redmesh.
//
// redmesh is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// redmesh is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with redmesh. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configDir   string
	environment string
)

var rootCmd = &cobra.Command{
	Use:   "redmesh-host",
	Short: "redmesh host node - exposes local peripherals to the mesh",
	Long: `redmesh-host runs the host side of the fabric (C3/C8): it scans its
locally-attached peripherals, announces them on a schedule, answers
discover/call/subscribe requests from clients, and polls high-frequency
peripherals to push state changes to subscribers.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "config", "directory holding <env>.yaml/default.yaml/config.yaml")
	rootCmd.PersistentFlags().StringVar(&environment, "env", "", "environment name (defaults to $REDMESH_ENV/$ENVIRONMENT/development)")
}
