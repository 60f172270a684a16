package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"Athernet/pkg/device"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the audio devices of the host",
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := device.Describe()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tHOST API\tIN\tOUT\tRATE")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0f\n", info.Name, info.HostAPI, info.Inputs, info.Outputs, info.SampleRate)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
