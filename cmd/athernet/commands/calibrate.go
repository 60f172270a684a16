package commands

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"Athernet/pkg/async"
	"Athernet/pkg/device"
)

var (
	calibrateInterval time.Duration
	calibrateRecord   string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Print the input power and the carrier sense threshold",
	Long: `Print the input power and the carrier sense threshold until Enter is
pressed. Use it to pick sensor.noise_floor and sensor.busy_ratio for a room.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var recorder *device.Recorder
		wrap := func(dev device.Device) device.Device {
			if calibrateRecord == "" {
				return dev
			}
			recorder = &device.Recorder{Device: dev}
			return recorder
		}
		node, err := openNode(wrap)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "press Enter to stop")
		ticker := time.NewTicker(calibrateInterval)
		enter, exit := async.EnterKey(), async.Exit()
	loop:
		for {
			select {
			case <-ticker.C:
				power, threshold := node.Monitor.Power(), node.Monitor.Threshold()
				fmt.Fprintf(out, "power %7.1f dB  threshold %7.1f dB  busy %v\n",
					decibels(power), decibels(threshold), node.Monitor.IsBusy())
			case <-enter:
				break loop
			case <-exit:
				break loop
			}
		}
		ticker.Stop()
		node.Close()

		if recorder != nil {
			if err := recorder.Save(calibrateRecord); err != nil {
				return err
			}
			logger.Info("input saved", "file", calibrateRecord)
		}
		return nil
	},
}

func decibels(power float64) float64 {
	return 10 * math.Log10(max(power, 1e-12))
}

func init() {
	calibrateCmd.Flags().DurationVarP(&calibrateInterval, "interval", "i", 200*time.Millisecond, "reporting interval")
	calibrateCmd.Flags().StringVar(&calibrateRecord, "record", "", "save the captured input to a file")
	rootCmd.AddCommand(calibrateCmd)
}
