// Command heartsync runs the HeartSync connection scoring server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	configPath   string
	tray         bool
	mockDetector bool
	noCamera     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "heartsync",
		Short:         "Measure the connection between two people in real time",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	flags.BoolVar(&opts.tray, "tray", false, "show a system tray menu")
	flags.BoolVar(&opts.mockDetector, "mock-detector", false, "use the mock landmark detector instead of MediaPipe")
	flags.BoolVar(&opts.noCamera, "no-camera", false, "run without the camera; vision channels stay empty")

	root.AddCommand(newVersionCmd(), newCheckConfigCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "heartsync", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "heartsync:", err)
		os.Exit(1)
	}
}
