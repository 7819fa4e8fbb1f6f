package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeffbean/zkwire/proto"
	"github.com/pkg/errors"
	"github.com/samuel/go-zookeeper/zk"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var contents = []byte("hello")

type loadConfig struct {
	Server     string
	Timeout    time.Duration
	Interval   time.Duration
	Nodes      []string
	Iterations int
	LogLevel   string
	// Digest is user:password for digest authentication, if set.
	Digest string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := loadConfig{}
	cmd := &cobra.Command{
		Use:           "zkload",
		Short:         "Drive a steady ZooKeeper workload to watch with zkwire",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := zap.ParseAtomicLevel(cfg.LogLevel)
			if err != nil {
				return errors.Wrap(err, "log level")
			}
			loggerConfig := zap.NewDevelopmentConfig()
			loggerConfig.Level = level
			loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
			logger, err := loggerConfig.Build()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := dial(ctx, cfg.Server, cfg.Timeout, logger)
			if err != nil {
				return err
			}
			defer s.Close()
			if cfg.Digest != "" {
				if err := s.Auth("digest", []byte(cfg.Digest)); err != nil {
					return err
				}
			}
			return runLoad(ctx, s, cfg, logger)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.Server, "server", "127.0.0.1:2181", "ZooKeeper server address")
	flags.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "session and request timeout")
	flags.DurationVar(&cfg.Interval, "interval", time.Second, "time between rounds")
	flags.StringSliceVar(&cfg.Nodes, "nodes", []string{"/foo", "/bar"}, "nodes written every round")
	flags.IntVar(&cfg.Iterations, "iterations", 0, "rounds to run, 0 runs until interrupted")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "debug, info, warn or error")
	flags.StringVar(&cfg.Digest, "digest", "", "user:password to authenticate with")
	return cmd
}

// opStats counts the calls made for one operation.
type opStats struct {
	calls  int
	errors int
	total  time.Duration
}

func (o *opStats) MarshalLogObject(kv zapcore.ObjectEncoder) error {
	kv.AddInt("calls", o.calls)
	kv.AddInt("errors", o.errors)
	if o.calls > 0 {
		kv.AddDuration("mean", o.total/time.Duration(o.calls))
	}
	return nil
}

type loadStats map[proto.OpType]*opStats

func (l loadStats) MarshalLogObject(kv zapcore.ObjectEncoder) error {
	for op, st := range l {
		if err := kv.AddObject(op.String(), st); err != nil {
			return err
		}
	}
	return nil
}

func (l loadStats) track(op proto.OpType, f func() error) error {
	st, ok := l[op]
	if !ok {
		st = &opStats{}
		l[op] = st
	}
	began := time.Now()
	err := f()
	st.calls++
	st.total += time.Since(began)
	if err != nil {
		st.errors++
	}
	return err
}

// runLoad writes every node once per round, runs a create-and-delete
// transaction on a scratch node and pings the server. Nodes are ephemeral
// and removed when the load stops.
func runLoad(ctx context.Context, s *session, cfg loadConfig, logger *zap.Logger) error {
	stats := loadStats{}
	defer func() {
		for _, node := range cfg.Nodes {
			_ = stats.track(proto.OpDelete, func() error { return s.Delete(node, proto.AnyVersion) })
		}
		logger.Info("load finished", zap.Object("stats", stats))
	}()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for round := 1; cfg.Iterations == 0 || round <= cfg.Iterations; round++ {
		if err := loadRound(s, cfg.Nodes, round, stats, logger); err != nil {
			return err
		}
		if cfg.Iterations != 0 && round == cfg.Iterations {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func loadRound(s *session, nodes []string, round int, stats loadStats, logger *zap.Logger) error {
	logger.Debug("round", zap.Int("round", round))
	for _, node := range nodes {
		err := stats.track(proto.OpSetData, func() error {
			_, err := s.Set(node, contents, proto.AnyVersion)
			return err
		})
		if errors.Is(err, zk.ErrNoNode) {
			err = stats.track(proto.OpCreate, func() error {
				_, err := s.Create(node, contents, proto.CreateEphemeral, proto.OpenUnsafeACL())
				return err
			})
		}
		if err := fatal(err); err != nil {
			return errors.Wrapf(err, "write %s", node)
		}
		logger.Debug("wrote node", zap.String("node", node))
	}

	scratch := fmt.Sprintf("/zkload-%d", round)
	err := stats.track(proto.OpMulti, func() error {
		_, err := s.Multi(
			proto.CreateOp{Path: scratch, Data: contents, ACL: proto.OpenUnsafeACL(), Mode: proto.CreateEphemeral},
			proto.DeleteOp{Path: scratch, Version: proto.AnyVersion},
		)
		return err
	})
	if err := fatal(err); err != nil {
		return errors.Wrap(err, "transaction")
	}
	return fatal(stats.track(proto.OpPing, s.Ping))
}

// fatal returns err unless it is a result code the server sent back. Those
// are counted and the load carries on.
func fatal(err error) error {
	if _, ok := proto.IsServiceError(err); ok || errors.Is(err, proto.ErrRolledBack) {
		return nil
	}
	return err
}
