package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"Athernet/pkg/frame"
	"Athernet/pkg/layers"
)

var (
	sendFile      string
	sendBroadcast bool
)

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send a message or a file to the peer",
	Long: `Send a message or a file to the peer.

Data longer than one frame is split into fragments and every fragment waits
for its acknowledgement. Broadcasts are not acknowledged.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := sendPayload(args)
		if err != nil {
			return err
		}
		dst := globalConfig.Link.Peer
		if sendBroadcast {
			dst = frame.Broadcast
		}

		node, err := openNode(nil)
		if err != nil {
			return err
		}
		defer node.Close()

		ctx, cancel := exitContext()
		defer cancel()
		if err := layers.NewSocket(node.Link).WriteTo(ctx, dst, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d bytes to %d (%d retransmissions)\n",
			len(data), dst, node.Stats.Retransmitted.Load())
		return nil
	},
}

func sendPayload(args []string) ([]byte, error) {
	switch {
	case sendFile == "-":
		return io.ReadAll(os.Stdin)
	case sendFile != "":
		return os.ReadFile(sendFile)
	case len(args) > 0:
		return []byte(strings.Join(args, " ")), nil
	default:
		return nil, fmt.Errorf("nothing to send, pass a message or --file")
	}
}

func init() {
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "send the contents of a file, - for stdin")
	sendCmd.Flags().BoolVar(&sendBroadcast, "broadcast", false, "send to every station")
	rootCmd.AddCommand(sendCmd)
}
