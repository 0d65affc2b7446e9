package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huddlehq/huddle/internal/client"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new room and print its join code",
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, joinCode, err := client.CreateRoom(cmd.Context(), serverURL)
		if err != nil {
			return err
		}
		fmt.Printf("room:      %s\n", roomID)
		fmt.Printf("join code: %s\n", joinCode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
