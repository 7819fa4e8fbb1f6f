package main

// Use tcpdump to create a test file
// tcpdump -w test.pcap port 2181
// and replay it with --pcap-file test.pcap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flagCfg := defaultConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:   "zkwire",
		Short: "Decode ZooKeeper client traffic captured off the wire",
		Long: `zkwire captures ZooKeeper traffic on an interface or reads it from a pcap
file, decodes every request and reply, and exports per-operation counts and
latencies on a Prometheus endpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := flagCfg
			if configPath != "" {
				fileCfg, err := loadConfig(configPath, defaultConfig())
				if err != nil {
					return err
				}
				cfg = overlayFlags(cmd, fileCfg, flagCfg)
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "TOML config file; explicit flags override its keys")
	flags.StringVar(&flagCfg.Interface, "interface", flagCfg.Interface, "interface to listen on")
	flags.StringVar(&flagCfg.PcapFile, "pcap-file", "", "read packets from a pcap file instead of an interface")
	flags.IntVar(&flagCfg.Port, "port", flagCfg.Port, "ZooKeeper server port")
	flags.Int32Var(&flagCfg.SnapshotLen, "snapshot-len", flagCfg.SnapshotLen, "bytes captured per packet")
	flags.StringVar(&flagCfg.ListenAddress, "listen-address", flagCfg.ListenAddress, "The address to listen on for HTTP requests.")
	flags.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "debug, info, warn or error")
	flags.IntVar(&flagCfg.MaxFrameSize, "max-frame-size", flagCfg.MaxFrameSize, "largest frame accepted before a stream is dropped")
	return cmd
}

// overlayFlags applies the flags set on the command line on top of cfg.
func overlayFlags(cmd *cobra.Command, cfg, flagCfg config) config {
	changed := cmd.Flags().Changed
	if changed("interface") {
		cfg.Interface = flagCfg.Interface
	}
	if changed("pcap-file") {
		cfg.PcapFile = flagCfg.PcapFile
	}
	if changed("port") {
		cfg.Port = flagCfg.Port
	}
	if changed("snapshot-len") {
		cfg.SnapshotLen = flagCfg.SnapshotLen
	}
	if changed("listen-address") {
		cfg.ListenAddress = flagCfg.ListenAddress
	}
	if changed("log-level") {
		cfg.LogLevel = flagCfg.LogLevel
	}
	if changed("max-frame-size") {
		cfg.MaxFrameSize = flagCfg.MaxFrameSize
	}
	return cfg
}

func openHandle(cfg config) (*pcap.Handle, error) {
	if cfg.PcapFile != "" {
		handle, err := pcap.OpenOffline(cfg.PcapFile)
		return handle, errors.Wrapf(err, "open %s", cfg.PcapFile)
	}
	handle, err := pcap.OpenLive(cfg.Interface, cfg.SnapshotLen, false /* promiscuous */, pcap.BlockForever)
	return handle, errors.Wrapf(err, "open interface %s", cfg.Interface)
}

func run(ctx context.Context, cfg config) error {
	logger, level, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	scope, metricsHandler, closer, err := RootScope()
	if err != nil {
		return err
	}
	defer closer.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.Handle("/log/level", level)
	server := &http.Server{Addr: cfg.ListenAddress, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	defer server.Close()

	handle, err := openHandle(cfg)
	if err != nil {
		return err
	}
	defer handle.Close()

	// Set filter for capture
	filter := fmt.Sprintf("tcp and port %v", cfg.Port)
	if err := handle.SetBPFFilter(filter); err != nil {
		return errors.Wrapf(err, "set filter %q", filter)
	}
	logger.Info("capturing",
		zap.String("filter", filter),
		zap.String("interface", cfg.Interface),
		zap.String("pcapFile", cfg.PcapFile),
		zap.String("metrics", cfg.ListenAddress),
	)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newSniffer(logger, newMetrics(scope), cfg)
	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetSource.DecodeStreamsAsDatagrams = true
	packets := packetSource.Packets()
	for {
		select {
		case <-ctx.Done():
			return nil
		case packet, ok := <-packets:
			if !ok {
				logger.Info("capture finished")
				return nil
			}
			s.handlePacket(packet)
		}
	}
}
