package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the fleet activity report",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := newAPIClient().getText("/report?format=text")
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}
