package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func printYAML(cmd *cobra.Command, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to render output: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

const timeLayout = time.RFC3339

var appNow = time.Now
