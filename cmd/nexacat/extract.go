package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/flyspark015/nexacat/internal/config"
	"github.com/flyspark015/nexacat/internal/domain"
	"github.com/flyspark015/nexacat/internal/draft"
	"github.com/flyspark015/nexacat/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	flagImages       []string
	flagText         string
	flagModel        string
	flagInstructions string
	flagMaxTokens    int
)

var extractCmd = &cobra.Command{
	Use:   "extract [url]",
	Short: "Extract one product and print the draft as JSON",
	Long: `Extract runs the draft pipeline once and prints the draft without storing it.

Examples:
  nexacat extract https://shop.example.com/p/oak-chair
  nexacat extract --image https://cdn.example.com/chair.jpg --text "Oak chair, 90 cm"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringSliceVar(&flagImages, "image", nil, "Product image URL (repeatable)")
	extractCmd.Flags().StringVar(&flagText, "text", "", "Product text to extract from")
	extractCmd.Flags().StringVar(&flagModel, "model", "", "Model to use instead of the configured one")
	extractCmd.Flags().StringVar(&flagInstructions, "instructions", "", "Extra instructions for the model")
	extractCmd.Flags().IntVar(&flagMaxTokens, "max_tokens", 0, "Maximum output tokens")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := newApp(cmd.Context(), cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	in := draft.Input{
		ImageURLs:    flagImages,
		Text:         flagText,
		Instructions: flagInstructions,
		Model:        flagModel,
		MaxTokens:    flagMaxTokens,
		AdminID:      "cli",
	}
	if len(args) == 1 {
		in.URL = args[0]
	}

	d, err := a.assembler.Assemble(cmd.Context(), in, func(p domain.Progress) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", p.Phase, p.Message)
	})
	if err != nil {
		var pe *domain.PhaseError
		if errors.As(err, &pe) {
			return fmt.Errorf("%w\n%s", err, pe.Hint())
		}
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
