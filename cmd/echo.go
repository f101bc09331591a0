package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opnsec/yhsm-go/command"
)

var echoCmd = &cobra.Command{
	Use:   "echo [message]",
	Short: "Round-trip a payload through the device",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx, cancel := withTimeout()
		defer cancel()

		s, key, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer key.Zero()
		defer s.Close(ctx)

		resp, err := s.SendCommand(ctx, command.Echo([]byte(args[0])))
		if err != nil {
			return err
		}
		fmt.Println(string(command.EchoResult(resp)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(echoCmd)
}
