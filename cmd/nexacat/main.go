// Command nexacat runs the product-draft extraction service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nexacat",
	Short: "Nexacat turns product pages into reviewable catalog drafts",
	Long: `Nexacat fetches a product page (or takes uploaded images and text), asks a
language model for structured product data and stores the result as a draft
that an admin reviews before it is published.

Usage:
  nexacat serve
  nexacat extract <url> [flags]`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
