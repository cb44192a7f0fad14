// moodcam watches a webcam, classifies the facial expression of the face in
// view and serves the result on a live dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "moodcam:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "moodcam",
		Short:         "Webcam facial expression monitor",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (default ./moodcam.yaml or ~/.moodcam/moodcam.yaml)")

	root.AddCommand(
		newServeCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newCameraCmd(),
		newLabelsCmd(),
	)
	return root
}
