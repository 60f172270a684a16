package commands

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"

	"Athernet/pkg/async"
)

var perfDuration time.Duration

var perfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Stream full frames to the peer and report the goodput",
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := openNode(nil)
		if err != nil {
			return err
		}
		defer node.Close()

		ctx, cancel := exitContext()
		defer cancel()
		if perfDuration > 0 {
			ctx, cancel = context.WithTimeout(ctx, perfDuration)
			defer cancel()
		}

		var acked atomic.Int64
		var sendErr error
		payload := make([]byte, node.Codec.MaxPayload())
		rng := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
		done := async.Job(func() {
			for ctx.Err() == nil {
				rng.Read(payload)
				if err := node.Send(ctx, payload); err != nil {
					if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
						sendErr = err
					}
					return
				}
				acked.Add(int64(len(payload)))
			}
		})

		out := cmd.OutOrStdout()
		start := time.Now()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var last int64
		for {
			select {
			case <-ticker.C:
				n := acked.Load()
				fmt.Fprintf(out, "%6.1fs %8.1f bps\n", time.Since(start).Seconds(), float64(n-last)*8)
				last = n
				continue
			case <-done:
			}
			break
		}

		elapsed := time.Since(start)
		fmt.Fprintf(out, "%d bytes in %v, %.1f bps, %d retransmissions\n",
			acked.Load(), elapsed.Round(time.Millisecond),
			float64(acked.Load())*8/elapsed.Seconds(), node.Stats.Retransmitted.Load())
		return sendErr
	},
}

func init() {
	perfCmd.Flags().DurationVarP(&perfDuration, "duration", "d", 0, "stop after this long, 0 runs until interrupted")
	rootCmd.AddCommand(perfCmd)
}
