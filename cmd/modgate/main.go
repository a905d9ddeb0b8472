package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/modgate/modgate/cmd/modgate/internal/gateway"
	"github.com/modgate/modgate/cmd/modgate/internal/version"
)

func NewModgateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "modgate",
		Short:   "modgate - moderated conversational relay",
		Example: "modgate gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewModgateCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
