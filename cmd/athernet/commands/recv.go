package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"Athernet/pkg/layers"
)

var (
	recvCount  int
	recvOutput string
)

var recvCmd = &cobra.Command{
	Use:   "recv",
	Short: "Print the packets received by this station",
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := openNode(nil)
		if err != nil {
			return err
		}
		defer node.Close()

		var out *os.File
		if recvOutput != "" {
			if out, err = os.Create(recvOutput); err != nil {
				return err
			}
			defer out.Close()
		}

		ctx, cancel := exitContext()
		defer cancel()
		socket := layers.NewSocket(node.Link)
		for n := 0; recvCount <= 0 || n < recvCount; n++ {
			data, src, err := socket.ReadFrom(ctx)
			if errors.Is(err, context.Canceled) {
				break
			}
			if err != nil {
				return err
			}
			if out != nil {
				if _, err := out.Write(data); err != nil {
					return err
				}
				logger.Info("packet saved", "src", src, "len", len(data))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "from %d: %q\n", src, data)
		}

		logger.Info("receiver done",
			"received", node.Stats.Received.Load(),
			"delivered", node.Stats.Delivered.Load(),
			"duplicates", node.Stats.Duplicates.Load(),
			"corrupted", node.Stats.Corrupted.Load())
		return nil
	},
}

func init() {
	recvCmd.Flags().IntVarP(&recvCount, "count", "n", 0, "stop after n packets, 0 runs until interrupted")
	recvCmd.Flags().StringVarP(&recvOutput, "output", "o", "", "append payloads to a file instead of printing them")
	rootCmd.AddCommand(recvCmd)
}
