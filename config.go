package main

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jeffbean/zkwire/proto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const zkDefaultPort = 2181

type config struct {
	Interface     string
	PcapFile      string
	Port          int
	SnapshotLen   int32
	ListenAddress string
	LogLevel      string
	MaxFrameSize  int
}

type fileConfig struct {
	Interface     string `toml:"interface"`
	PcapFile      string `toml:"pcap_file"`
	Port          int    `toml:"port"`
	SnapshotLen   int32  `toml:"snapshot_len"`
	ListenAddress string `toml:"listen_address"`
	LogLevel      string `toml:"log_level"`
	MaxFrameSize  int    `toml:"max_frame_size"`
}

func defaultConfig() config {
	return config{
		Interface:     "eth0",
		Port:          zkDefaultPort,
		SnapshotLen:   65535,
		ListenAddress: ":8085",
		LogLevel:      "info",
		MaxFrameSize:  proto.DefaultMaxFrameSize,
	}
}

// loadConfig overlays the keys present in the TOML file at path on cfg.
func loadConfig(path string, cfg config) (config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, errors.Wrap(err, "load config")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, errors.Errorf("load config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("interface") {
		cfg.Interface = strings.TrimSpace(raw.Interface)
	}
	if meta.IsDefined("pcap_file") {
		cfg.PcapFile = strings.TrimSpace(raw.PcapFile)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("snapshot_len") {
		cfg.SnapshotLen = raw.SnapshotLen
	}
	if meta.IsDefined("listen_address") {
		cfg.ListenAddress = strings.TrimSpace(raw.ListenAddress)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("max_frame_size") {
		cfg.MaxFrameSize = raw.MaxFrameSize
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	if c.SnapshotLen <= 0 {
		return errors.Errorf("invalid snapshot_len %d", c.SnapshotLen)
	}
	if c.MaxFrameSize <= 0 {
		return errors.Errorf("invalid max_frame_size %d", c.MaxFrameSize)
	}
	if c.Interface == "" && c.PcapFile == "" {
		return errors.New("one of interface or pcap_file is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	return nil
}

// newLogger builds the compact console logger used by the commands. The
// returned level can be changed while the logger is in use.
func newLogger(level string) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, lvl, errors.Wrap(err, "log level")
	}
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.Level = lvl
	loggerConfig.EncoderConfig = zapcore.EncoderConfig{
		LevelKey:      "L",
		TimeKey:       "T",
		MessageKey:    "M",
		NameKey:       "N",
		CallerKey:     "",
		StacktraceKey: "S",
		EncodeLevel:   zapcore.CapitalColorLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
	}
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, lvl, errors.Wrap(err, "build logger")
	}
	return logger, lvl, nil
}
