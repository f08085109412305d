package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/berrythewa/ifmctl/internal/dispatch"
	"github.com/berrythewa/ifmctl/internal/telemetry"
	"github.com/berrythewa/ifmctl/internal/types"
	"github.com/berrythewa/ifmctl/pkg/format"
)

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send COMMAND [json-params]",
		Short: "Send one command and print the reply",
		Long: `Send a single command over the command channel and print the reply.

  ifmctl send IS_CONNECTED
  ifmctl send APPLY_CONFIG '{"exposure": 100}'

A stream started by START_STREAM is not kept after the reply; use
'ifmctl stream' to watch telemetry.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := outputOptions()
			out := cmd.OutOrStdout()

			// Reject unknown names before dialing
			if _, ok := types.LookupCommand(args[0]); !ok && !isShellWord(args[0]) {
				return fmt.Errorf("unknown command %q, see 'ifmctl commands'", args[0])
			}

			c, err := connect(cmd.Context(), telemetry.ReporterFuncs{})
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.dispatch.Handle(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			switch res.Action {
			case dispatch.ActionHelp:
				fmt.Fprintln(out, format.CommandList(types.Commands, opts))
			case dispatch.ActionReply:
				fmt.Fprintln(out, format.Reply(res.Reply, opts))
			}
			return nil
		},
	}
}

func isShellWord(s string) bool {
	switch strings.ToLower(s) {
	case "help", "exit", "quit":
		return true
	}
	return false
}
