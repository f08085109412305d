// Package format renders replies, stream averages and status lines for the
// terminal.
package format

import (
	"fmt"
	"strings"

	"github.com/berrythewa/ifmctl/internal/types"
)

// Reply renders a peer reply, indented when it is JSON
func Reply(r types.Reply, opts Options) string {
	if opts.Indent {
		return r.Pretty()
	}
	return r.String()
}

// Average renders one frame average the way the stream prints it
func Average(avg types.FrameAverage, opts Options) string {
	prefix := ColorizeIf("[Stream AVG]", Cyan, opts.UseColors)
	return fmt.Sprintf("%s %s", prefix, avg.String())
}

// StreamError renders a consumer-side failure
func StreamError(err error, opts Options) string {
	return Error("stream error: "+err.Error(), opts)
}

// Error renders a failure line
func Error(msg string, opts Options) string {
	return iconIf("error", opts) + ColorizeIf(msg, Red, opts.UseColors)
}

// Status renders an informational line with an optional icon
func Status(icon, msg string, opts Options) string {
	return iconIf(icon, opts) + msg
}

// CommandList renders the command catalog for help output
func CommandList(cmds []types.CommandName, opts Options) string {
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = string(c)
	}
	var b strings.Builder
	b.WriteString(BoldIf("Available commands:", opts.UseColors))
	b.WriteString("\n")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\n")
	b.WriteString("COMMAND [json-params]  send a command, e.g. APPLY_CONFIG {\"exposure\": 100}")
	return b.String()
}
