package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opnsec/yhsm-go/command"
)

var listObjectsType uint8

var listObjectsCmd = &cobra.Command{
	Use:   "list-objects",
	Short: "List objects stored on the device",
	RunE: func(c *cobra.Command, args []string) error {
		ctx, cancel := withTimeout()
		defer cancel()

		s, key, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer key.Zero()
		defer s.Close(ctx)

		var filters []command.ListFilter
		if c.Flags().Changed("type") {
			filters = append(filters, command.FilterByType(command.ObjectType(listObjectsType)))
		}

		resp, err := s.SendCommand(ctx, command.ListObjects(filters...))
		if err != nil {
			return err
		}
		entries, err := command.ParseListObjects(resp)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("0x%04x  type=0x%02x\n", e.ObjectID, uint8(e.Type))
		}
		return nil
	},
}

func init() {
	listObjectsCmd.Flags().Uint8Var(&listObjectsType, "type", 0, "filter by object type")
	rootCmd.AddCommand(listObjectsCmd)
}
