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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/redmesh-project/redmesh/internal/wire"
)

var (
	subPeripheral string
	subMethod     string
	subArgs       string
	subInterval   int
	subEvent      string
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe to a peripheral method and print every state push until interrupted",
	RunE:  runSubscribe,
}

func init() {
	rootCmd.AddCommand(subscribeCmd)
	subscribeCmd.Flags().StringVar(&subPeripheral, "peripheral", "", "peripheral name or key to subscribe to (required)")
	subscribeCmd.Flags().StringVar(&subMethod, "method", "", "method name whose result is pushed (required)")
	subscribeCmd.Flags().StringVar(&subArgs, "args", "null", "JSON-encoded argument array/object")
	subscribeCmd.Flags().IntVar(&subInterval, "interval-ms", 1000, "host-side polling interval for this subscription")
	subscribeCmd.Flags().StringVar(&subEvent, "event", "", "event name to report in the push (informational)")
	_ = subscribeCmd.MarkFlagRequired("peripheral")
	_ = subscribeCmd.MarkFlagRequired("method")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	c, teardown, err := bootClient(ctx)
	if err != nil {
		return err
	}
	defer teardown()

	if err := waitForPeripheral(ctx, c, subPeripheral, 5*time.Second); err != nil {
		return err
	}

	var raw json.RawMessage
	if subArgs != "" {
		raw = json.RawMessage(subArgs)
	}

	err = c.Subscribe(ctx, subPeripheral, subMethod, raw, subInterval, subEvent, func(data wire.StatePushData) {
		fmt.Printf("[push] %s.%s -> %s\n", data.Peripheral, data.Method, string(data.Results))
	})
	if err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	defer c.Unsubscribe(context.Background(), subPeripheral, subMethod, raw)

	fmt.Println("subscribed, press Ctrl+C to stop")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	return nil
}
