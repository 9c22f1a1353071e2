package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/sonoscribe/pkg/audio/portaudio"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices usable as capture.device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := portaudio.ListInputDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no input devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
}
