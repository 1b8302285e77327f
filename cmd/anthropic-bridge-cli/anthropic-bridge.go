package main

import (
	"github.com/spf13/cobra"
)

func main() {
	command := newAnthropicBridgeCliCommand()
	cobra.CheckErr(command.Execute())
}

func newAnthropicBridgeCliCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "anthropic-bridge-cli [COMMAND] [OPTIONS]",
		Short:         "Anthropic Bridge Command-Line Interface",
		Version:       "v0.1.0",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(newServeCommand())
	return cmd
}
