package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
)

var errNoPrescriptions = errors.New("no prescriptions found for this user")

var listCmd = &cobra.Command{
	Use:   "list <email>",
	Short: "List a submitter's extractions, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.Extract.ListBySubmitter(ctx, args[0])
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return errNoPrescriptions
		}
		return printJSON(map[string]any{"count": len(recs), "prescriptions": recs})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
