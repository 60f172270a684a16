package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
	pingTimeout  time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure the round trip time to the peer",
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := openNode(nil)
		if err != nil {
			return err
		}
		defer node.Close()

		ctx, cancel := exitContext()
		defer cancel()

		dst := globalConfig.Link.Peer
		out := cmd.OutOrStdout()
		var (
			sent, lost    int
			total         time.Duration
			fastest, slow time.Duration
		)
		for i := 0; pingCount <= 0 || i < pingCount; i++ {
			if i > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(pingInterval):
				}
			}
			if ctx.Err() != nil {
				break
			}

			sent++
			pctx, pcancel := context.WithTimeout(ctx, pingTimeout)
			rtt, err := node.Ping(pctx, dst)
			pcancel()
			if err != nil {
				lost++
				fmt.Fprintf(out, "no reply from %d: %v\n", dst, err)
				continue
			}
			fmt.Fprintf(out, "reply from %d: seq=%d time=%v\n", dst, i, rtt.Round(time.Microsecond))
			total += rtt
			if fastest == 0 || rtt < fastest {
				fastest = rtt
			}
			slow = max(slow, rtt)
		}

		if received := sent - lost; received > 0 {
			fmt.Fprintf(out, "%d sent, %d received, min/avg/max = %v/%v/%v\n",
				sent, received, fastest, total/time.Duration(received), slow)
		} else {
			fmt.Fprintf(out, "%d sent, 0 received\n", sent)
		}
		return nil
	},
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "n", 4, "number of pings, 0 runs until interrupted")
	pingCmd.Flags().DurationVarP(&pingInterval, "interval", "i", time.Second, "wait between pings")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 2*time.Second, "give up on a reply after this long")
	rootCmd.AddCommand(pingCmd)
}
