package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/gezibash/arc-registrar/internal/config"
	"github.com/gezibash/arc-registrar/internal/keyring"
	arcnode "github.com/gezibash/arc-registrar/internal/node"
	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/server"
	"github.com/gezibash/arc-registrar/internal/snapshot"
	_ "github.com/gezibash/arc-registrar/internal/snapshot/fs"
	_ "github.com/gezibash/arc-registrar/internal/snapshot/s3"
	"github.com/gezibash/arc-registrar/pkg/logging"
	"github.com/gezibash/arc-registrar/pkg/namehash"
)

const shutdownTimeout = 15 * time.Second

func newStartCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a registrar node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runStart(cmd.Context(), cfg)
		},
	}
	config.BindServeFlags(cmd, v)
	return cmd
}

func runStart(ctx context.Context, cfg config.Config) error {
	obs, err := observability.New(ctx, observability.Options{
		LogLevel:         cfg.Observability.LogLevel,
		LogFormat:        cfg.Observability.LogFormat,
		OTLPEndpoint:     cfg.Observability.OTLPEndpoint,
		OTLPProtocol:     cfg.Observability.OTLPProtocol,
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
	}, os.Stderr)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	log := logging.New(obs.Logger).WithComponent("node")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := obs.Close(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
	}()

	kr := keyring.New(cfg.ResolvedDataDir())
	key, err := kr.LoadOrGenerate(ctx, cfg.GRPC.NodeKey)
	if err != nil {
		return fmt.Errorf("load node identity: %w", err)
	}
	if _, err := kr.LoadDefault(ctx); errors.Is(err, keyring.ErrNoDefault) {
		_ = kr.SetDefault(cfg.GRPC.NodeKey)
	}
	log = log.WithAddress("node_address", key.Address())

	opts, err := cfg.NodeOptions(key.Address(), obs.Metrics)
	if err != nil {
		return err
	}
	n, err := arcnode.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open node: %w", err)
	}
	obs.Shutdown.Register("node", func(context.Context) error { return n.Close() })

	m := n.Manifest()
	log.Info("node ready",
		"backend", opts.Backend,
		"clock", n.ClockMode(),
		"tld", m.TLD,
		"domain", m.Domain,
		"deployer", m.Deployer.Hex(),
	)

	var target snapshot.Target
	if cfg.Snapshot.Backend != "" {
		if target, err = snapshot.OpenTarget(ctx, cfg.Snapshot.Backend, cfg.Snapshot.Config); err != nil {
			return fmt.Errorf("open snapshot target: %w", err)
		}
		obs.Shutdown.Register("snapshot-target", func(context.Context) error { return target.Close() })
	}

	var operator common.Address
	if cfg.GRPC.Operator != "" {
		if operator, err = namehash.ParseAddress(cfg.GRPC.Operator); err != nil {
			return fmt.Errorf("grpc.operator: %w", err)
		}
	}

	srv, err := server.New(server.Options{
		Addr:             cfg.GRPC.Addr,
		Node:             n,
		Signer:           key,
		Operator:         operator,
		Snapshots:        target,
		Obs:              obs,
		MaxSkew:          cfg.GRPC.MaxClockSkew,
		EnableReflection: cfg.GRPC.EnableReflection,
		ServerOptions: []grpc.ServerOption{
			grpc.MaxRecvMsgSize(cfg.GRPC.MaxRecvMsgSize),
			grpc.MaxSendMsgSize(cfg.GRPC.MaxSendMsgSize),
		},
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	if cfg.Observability.MetricsAddr != "" {
		ln, err := net.Listen("tcp", cfg.Observability.MetricsAddr)
		if err != nil {
			srv.Stop(ctx)
			return fmt.Errorf("metrics listener: %w", err)
		}
		g.Go(func() error { return obs.ServeMetrics(gctx, ln) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Stop(stopCtx)
		return nil
	})
	return g.Wait()
}
