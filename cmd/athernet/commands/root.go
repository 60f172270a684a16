package commands

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"Athernet/cmd/athernet/config"
	"Athernet/pkg/async"
	"Athernet/pkg/device"
	"Athernet/pkg/frame"
	"Athernet/pkg/layers"
)

var (
	configFile string
	logLevel   string
	address    uint8
	peer       uint8

	globalConfig *config.Config
	logger       = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "athernet",
	Short: "Acoustic network link over a speaker and a microphone",
	Long: `athernet - a CSMA/CA packet link over sound.

Frames are modulated as 16-tone MFSK behind a chirp preamble, protected by
Reed-Solomon parity and a CRC-32, and acknowledged one at a time.

Examples:
  # Print the input level to tune the busy threshold
  athernet calibrate

  # Send a message to station 2 and print what station 2 receives
  athernet send --peer 2 "hello"
  athernet recv --addr 2

  # Carry IP traffic over the link
  sudo athernet bridge -c node1.yml`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "athernet.yml", "config file")
	flags.StringVar(&logLevel, "log-level", "", "override the configured log level")
	flags.Uint8Var(&address, "addr", 0, "override the station address")
	flags.Uint8Var(&peer, "peer", 0, "override the peer address")
}

// loadConfig reads the config file. A missing default file falls back to the
// built in defaults.
func loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	case err != nil:
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("addr") {
		cfg.Link.Address = frame.Address(address)
	}
	if flags.Changed("peer") {
		cfg.Link.Peer = frame.Address(peer)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	l, err := config.CreateLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	globalConfig, logger = cfg, l
	slog.SetDefault(l)
	return nil
}

// openNode starts a station on the configured device. wrap may decorate the
// device before the node takes it.
func openNode(wrap func(device.Device) device.Device) (*layers.Node, error) {
	dev, err := config.CreateDevice(globalConfig, logger)
	if err != nil {
		return nil, err
	}
	if wrap != nil {
		dev = wrap(dev)
	}
	node, err := config.CreateNode(globalConfig, dev, logger)
	if err != nil {
		return nil, err
	}
	if err := node.Open(); err != nil {
		node.Link.Close()
		return nil, err
	}
	logger.Info("station up",
		"addr", globalConfig.Link.Address,
		"peer", globalConfig.Link.Peer,
		"driver", globalConfig.Device.Driver,
		"max_payload", node.Codec.MaxPayload())
	return node, nil
}

// exitContext is canceled on SIGINT or SIGTERM.
func exitContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-async.Exit():
			logger.Info("exiting")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
