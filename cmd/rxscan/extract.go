package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var extractEmail string

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract text from one document and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cfg.Server.RequestTimeout)
		defer cancel()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Extract.ExtractFile(ctx, args[0], optionalEmail(extractEmail))
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"original_text":  rec.OriginalText,
			"processed_text": rec.ProcessedText,
			"cleaned_text":   rec.CleanedText,
			"image_id":       rec.ImageID,
			"message": fmt.Sprintf("Use /view-image/%s/original or /view-image/%s/processed to view images",
				rec.ImageID, rec.ImageID),
		})
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractEmail, "email", "e", "", "submitter email")
	rootCmd.AddCommand(extractCmd)
}
