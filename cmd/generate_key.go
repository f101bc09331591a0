package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opnsec/yhsm-go/command"
)

var (
	genKeyLabel string
	genKeyID    uint16
)

var generateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Generate an Ed25519 asymmetric key on the device",
	RunE: func(c *cobra.Command, args []string) error {
		ctx, cancel := withTimeout()
		defer cancel()

		s, key, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer key.Zero()
		defer s.Close(ctx)

		genCmd, err := command.GenerateAsymmetricKey(genKeyID, []byte(genKeyLabel), command.Domain1,
			command.CapabilityAsymmetricSignEddsa, command.AlgorithmEd25519)
		if err != nil {
			return err
		}
		if _, err := s.SendCommand(ctx, genCmd); err != nil {
			return err
		}

		resp, err := s.SendCommand(ctx, command.GetPubKey(genKeyID))
		if err != nil {
			return err
		}
		pub, err := command.ParsePublicKey(resp)
		if err != nil {
			return err
		}
		fmt.Printf("object id: 0x%04x\npublic key: %s\n", genKeyID, hex.EncodeToString(pub.Key))
		return nil
	},
}

func init() {
	generateKeyCmd.Flags().Uint16Var(&genKeyID, "id", 0, "object ID to assign the new key")
	generateKeyCmd.Flags().StringVar(&genKeyLabel, "label", "", "key label (max 40 bytes)")
	rootCmd.AddCommand(generateKeyCmd)
}
