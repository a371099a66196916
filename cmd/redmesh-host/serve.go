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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/redmesh-project/redmesh/config"
	"github.com/redmesh-project/redmesh/internal/health"
	"github.com/redmesh-project/redmesh/internal/host"
	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/meshconn"
	"github.com/redmesh-project/redmesh/peripheral"
)

var (
	fixturesPath string
	computerName string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Scan local peripherals and serve them to the mesh",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&fixturesPath, "fixtures", "", "YAML file describing the mock peripherals this host exposes")
	serveCmd.Flags().StringVar(&computerName, "computer-name", "", "host name announced on the mesh (defaults to node.host_name)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, Environment: environment})
	if err != nil {
		return err
	}
	log := meshconn.BuildLogger(cfg)

	if computerName == "" {
		computerName = cfg.Node.HostName
	}

	adapters, err := loadFixtures(fixturesPath)
	if err != nil {
		return err
	}
	log.Info("loaded peripheral fixtures", logger.Int("count", len(adapters)))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conn, err := meshconn.Dial(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	source := host.AdapterSourceFunc(func() []peripheral.Adapter { return adapters })

	opts := []host.Option{
		host.WithAnnounceInterval(nonZero(cfg.Tunables.AnnounceInterval, 10*time.Second)),
		host.WithSnapshotTTL(nonZero(cfg.Tunables.SnapshotTTL, 5*time.Second)),
		host.WithActivityPollPeriod(nonZero(cfg.Tunables.ActivityPollInterval, 1500*time.Millisecond)),
		host.WithDefaultSubscribeInterval(cfg.Tunables.SubscribeInterval),
		host.WithChunkLimit(cfg.Tunables.DefaultChunkLimit, cfg.Tunables.MaxChunkLimit),
		host.WithMethodPolicy(cfg.Methods.ExtraActions, cfg.Methods.ExtraHeavy),
	}
	if len(cfg.Exclusions.Types) > 0 {
		opts = append(opts, host.WithExclusions(cfg.Exclusions.Types))
	}

	srv := host.NewServer(cfg.Node.ID, computerName, conn.Link, source, opts...)

	checker := health.NewChecker(5*time.Second, log)
	checker.Register("peripherals", health.RegistrySizeCheck(func() int { return len(adapters) }, 30*time.Second, bootTime))
	meshconn.StartAmbient(cfg, checker, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("redmesh-host serving", logger.Node(cfg.Node.ID), logger.String("host_name", computerName))
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

var bootTime = time.Now()

func nonZero(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}
