package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// emit prints v as indented JSON when asJSON is set. Otherwise human renders
// it, colorized when stdout is a terminal.
func emit(cmd *cobra.Command, asJSON bool, v any, human func(out io.Writer, colorize bool)) error {
	out := cmd.OutOrStdout()
	if asJSON || human == nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(out, shouldColorize(out))
	return nil
}
