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

// Package meshconn is the boot-time wiring shared by cmd/redmesh-host
// and cmd/redmesh-client: turn a config.Config into a signed
// transport.Link plus the metrics/health servers §6 names, so neither
// binary repeats the other's envelope/channel setup.
package meshconn

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redmesh-project/redmesh/config"
	"github.com/redmesh-project/redmesh/internal/envelope"
	"github.com/redmesh-project/redmesh/internal/health"
	"github.com/redmesh-project/redmesh/internal/logger"
	"github.com/redmesh-project/redmesh/internal/metrics"
	"github.com/redmesh-project/redmesh/internal/scheduler"
	"github.com/redmesh-project/redmesh/internal/transport"
)

// Conn bundles the signed Link every node runs over plus whatever
// background goroutines (redial loop, metrics/health servers) were
// started alongside it. Close tears all of it down.
type Conn struct {
	Link    *transport.Link
	channel *transport.WSChannel
	redial  *scheduler.Periodic
	log     logger.Logger
}

// Dial builds a Link for cfg.Node.ID: a WSChannel listening on
// cfg.Transport.ListenAddr (if set) and dialing every cfg.Transport.Peers
// entry, wrapped in a Codec built from cfg.Secret/cfg.Tunables. Peers
// that are unreachable at boot are retried on a background interval
// rather than failing Dial outright, matching the transport's
// no-delivery-guarantee contract (a peer may simply not be up yet).
func Dial(ctx context.Context, cfg *config.Config, log logger.Logger) (*Conn, error) {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	secret := cfg.Secret.Resolve()
	sc, err := envelope.NewSecurityContext(secret)
	if err != nil {
		return nil, fmt.Errorf("meshconn: building security context: %w", err)
	}
	nonceTTL := cfg.Tunables.NonceExpiry
	if nonceTTL == 0 {
		nonceTTL = envelope.DefaultNonceExpiry
	}
	maxAge := cfg.Tunables.MaxMessageAge
	if maxAge == 0 {
		maxAge = envelope.DefaultMaxMessageAge
	}
	codec := envelope.NewCodec(sc, envelope.NewNonceCache(nonceTTL), maxAge).WithFutureSkew(cfg.Tunables.FutureSkew)

	ch := transport.NewWSChannel(cfg.Node.ID)

	if cfg.Transport.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/mesh", ch.UpgradeHandler())
		srv := &http.Server{Addr: cfg.Transport.ListenAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("mesh listener stopped", logger.Error(err))
			}
		}()
		log.Info("listening for mesh peers", logger.String("addr", cfg.Transport.ListenAddr))
	}

	redial := scheduler.New(10 * time.Second)
	if len(cfg.Transport.Peers) > 0 {
		redial.Start(ctx, func(ctx context.Context) {
			dialMissingPeers(ctx, ch, cfg.Transport.Peers, log)
		})
	}

	return &Conn{
		Link:    transport.NewLink(ch, codec),
		channel: ch,
		redial:  redial,
		log:     log,
	}, nil
}

// dialMissingPeers attempts to connect to every configured peer that
// isn't already connected. A peer entry is "id@endpoint[|endpoint...]":
// one or more candidate addresses for the same peer, each optionally
// prefixed "relay:" to mark it long-range. Per spec §2's endpoint
// preference rule only the highest-ranked candidate is ever dialed -
// the rest are not attempted, which is what keeps a peer reachable by
// both a relay and a direct address from delivering every frame twice.
// Peers given as a bare endpoint are dialed without a known id and
// learn their id from the first frame they send, same as an inbound
// UpgradeHandler connection.
func dialMissingPeers(ctx context.Context, ch *transport.WSChannel, peers []string, log logger.Logger) {
	for _, peer := range peers {
		id, candidates := splitPeer(peer)
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := ch.Open(dialCtx, id, candidates, transport.PreferLongRange)
		cancel()
		if err != nil {
			log.Debug("peer dial failed, will retry", logger.String("peer", peer), logger.Error(err))
		}
	}
}

// splitPeer parses one "id@endpoint[|endpoint...]" peer entry into an
// id and its candidate transport.Endpoints.
func splitPeer(peer string) (id string, candidates []transport.Endpoint) {
	rest := peer
	for i := 0; i < len(peer); i++ {
		if peer[i] == '@' {
			id, rest = peer[:i], peer[i+1:]
			break
		}
	}
	for _, part := range strings.Split(rest, "|") {
		longRange := false
		if strings.HasPrefix(part, "relay:") {
			longRange = true
			part = strings.TrimPrefix(part, "relay:")
		}
		candidates = append(candidates, transport.Endpoint{URL: part, LongRange: longRange})
	}
	return id, candidates
}

// Close stops the redial loop and the underlying channel.
func (c *Conn) Close() error {
	c.redial.Stop()
	return c.channel.Close()
}

// StartAmbient launches the metrics and health HTTP servers cfg
// enables, logging and continuing on a listener failure rather than
// taking the node down (spec's ambient stack, not its core operation).
func StartAmbient(cfg *config.Config, checker *health.Checker, log logger.Logger) {
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		go func() {
			log.Info("metrics server starting", logger.String("addr", cfg.Metrics.Addr))
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
				log.Error("metrics server stopped", logger.Error(err))
			}
		}()
	}
	if cfg.Health != nil && cfg.Health.Enabled && checker != nil {
		path := cfg.Health.Path
		if path == "" {
			path = "/healthz"
		}
		go func() {
			log.Info("health server starting", logger.String("addr", cfg.Health.Addr), logger.String("path", path))
			if err := health.StartServer(cfg.Health.Addr, path, checker); err != nil {
				log.Error("health server stopped", logger.Error(err))
			}
		}()
	}
}

// BuildLogger configures the process-wide logger.GetDefaultLogger()
// instance from cfg.Logging, returning it for local use.
func BuildLogger(cfg *config.Config) logger.Logger {
	lvl := logger.InfoLevel
	pretty := false
	if cfg.Logging != nil {
		switch cfg.Logging.Level {
		case "debug":
			lvl = logger.DebugLevel
		case "warn":
			lvl = logger.WarnLevel
		case "error":
			lvl = logger.ErrorLevel
		}
		pretty = cfg.Logging.Format == "pretty" || cfg.Logging.Format == "text"
	}
	l := logger.NewLogger(os.Stdout, lvl)
	l.SetPrettyPrint(pretty)
	logger.SetDefaultLogger(l)
	return l
}
