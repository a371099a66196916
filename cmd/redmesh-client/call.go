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
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	callPeripheral string
	callMethod     string
	callArgs       string
	callTimeout    time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Invoke one method on a peripheral and print its JSON result",
	RunE:  runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringVar(&callPeripheral, "peripheral", "", "peripheral name or key to call (required)")
	callCmd.Flags().StringVar(&callMethod, "method", "", "method name to invoke (required)")
	callCmd.Flags().StringVar(&callArgs, "args", "null", "JSON-encoded argument array/object")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 5*time.Second, "overall call timeout, including discovery wait")
	_ = callCmd.MarkFlagRequired("peripheral")
	_ = callCmd.MarkFlagRequired("method")
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, teardown, err := bootClient(ctx)
	if err != nil {
		return err
	}
	defer teardown()

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := waitForPeripheral(callCtx, c, callPeripheral, callTimeout); err != nil {
		return err
	}

	var raw json.RawMessage
	if callArgs != "" {
		raw = json.RawMessage(callArgs)
	}

	result, err := c.Cache.Call(callCtx, callPeripheral, callMethod, raw)
	if err != nil {
		return fmt.Errorf("call failed: %w", err)
	}
	fmt.Println(string(result))
	return nil
}
