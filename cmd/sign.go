package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opnsec/yhsm-go/command"
)

var signKeyID uint16

var signCmd = &cobra.Command{
	Use:   "sign [message]",
	Short: "Sign a message with an Ed25519 key stored on the device",
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

		resp, err := s.SendCommand(ctx, command.SignDataEddsa(signKeyID, []byte(args[0])))
		if err != nil {
			return err
		}
		fmt.Println(hex.EncodeToString(command.SignatureResult(resp)))
		return nil
	},
}

func init() {
	signCmd.Flags().Uint16Var(&signKeyID, "id", 0, "signing key object ID")
	rootCmd.AddCommand(signCmd)
}
