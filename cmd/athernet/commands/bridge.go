package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"Athernet/cmd/athernet/config"
	"Athernet/pkg/iface"
	"Athernet/pkg/layers"
)

var bridgeAll bool

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Carry IP packets between a TUN interface and the peer",
	Long: `Carry IP packets between a TUN interface and the peer.

By default only ICMPv4, DNS, TCP and UDP packets are forwarded so that
multicast chatter of the host does not occupy the channel. Creating the
interface usually needs root.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, err := config.InterfacePrefix(globalConfig)
		if err != nil {
			return err
		}

		node, err := openNode(nil)
		if err != nil {
			return err
		}
		defer node.Close()

		tun, err := iface.OpenTUN(prefix, globalConfig.Interface.MTU, logger)
		if err != nil {
			return err
		}
		defer tun.Close()
		logger.Info("interface up", "name", tun.Name(), "prefix", prefix)

		bridge := &iface.Bridge{
			Interface: tun,
			Conn:      layers.NewSocket(node.Link),
			Peer:      globalConfig.Link.Peer,
			Logger:    logger,
		}
		if !bridgeAll {
			bridge.Filter = iface.Forwardable
		}

		ctx, cancel := exitContext()
		defer cancel()
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	bridgeCmd.Flags().BoolVar(&bridgeAll, "all", false, "forward every IP packet")
	rootCmd.AddCommand(bridgeCmd)
}
