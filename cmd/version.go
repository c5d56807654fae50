package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "v0.1.0"

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show runelight version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("runelight " + version)
			return nil
		},
	}
}
