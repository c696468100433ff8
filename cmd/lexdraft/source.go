package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/lexdraft/document"
	"github.com/sweetpotato0/lexdraft/extract"
	"github.com/sweetpotato0/lexdraft/pkg/logging"
)

// readDocument extracts the text of path, or of stdin when path is "-".
func readDocument(ctx context.Context, cmd *cobra.Command, path string) (document.Document, error) {
	var (
		data []byte
		err  error
		name = path
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		name = "stdin.txt"
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("read %s: %w", path, err)
	}

	out, err := extract.NewRouter().Extract(ctx, extract.Raw{Name: name, Data: data})
	if err != nil {
		return document.Document{}, fmt.Errorf("extract %s: %w", path, err)
	}
	logging.WithComponent("cli").Debug("document extracted",
		"file", path,
		"method", out.Method,
		"confidence", out.Confidence,
		"chars", len([]rune(out.Text)),
	)

	title := filepath.Base(path)
	return document.New(out.Text).
		WithTitle(title).
		WithMetadata("extraction_method", out.Method), nil
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
