// Clawgate - Trust gate for inter-agent messaging
//
// Copyright (c) 2026 Clawgate contributors
// License: MIT

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/clawgate/cmd/clawgate/internal"
	"github.com/tinyland-inc/clawgate/cmd/clawgate/internal/gateway"
	policycmd "github.com/tinyland-inc/clawgate/cmd/clawgate/internal/policy"
	"github.com/tinyland-inc/clawgate/cmd/clawgate/internal/send"
	"github.com/tinyland-inc/clawgate/cmd/clawgate/internal/version"
)

func NewClawgateCommand() *cobra.Command {
	short := fmt.Sprintf("%s clawgate - Inter-agent message trust gate v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "clawgate",
		Short:   short,
		Example: "clawgate gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		send.NewSendCommand(),
		policycmd.NewPolicyCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewClawgateCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
