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
	"time"

	"github.com/spf13/cobra"
)

var listTimeout time.Duration

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Listen for announcements and print every discovered peripheral",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().DurationVar(&listTimeout, "timeout", 3*time.Second, "how long to listen before printing results")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, teardown, err := bootClient(ctx)
	if err != nil {
		return err
	}
	defer teardown()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(listTimeout):
	}

	names := c.Registry.GetNames()
	if len(names) == 0 {
		fmt.Println("no peripherals discovered")
		return nil
	}
	for _, name := range names {
		rp, _ := c.Registry.Wrap(name)
		fmt.Printf("%s\t%s\thost=%s\n", rp.Name, rp.Type, rp.HostID)
	}
	return nil
}
