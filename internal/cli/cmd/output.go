package cmd

import (
	"io"
	"os"
	"sync"

	"github.com/berrythewa/ifmctl/internal/errors"
	"github.com/berrythewa/ifmctl/pkg/format"
)

// lockedWriter serializes prompt output and stream lines
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func outputOptions() format.Options {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return format.PlainOptions()
	}
	return format.DefaultOptions()
}

// userMessage drops the component prefix of classified errors
func userMessage(err error) string {
	ce, ok := err.(*errors.ClassifiedError)
	if !ok {
		return err.Error()
	}
	msg := ce.Err.Error()
	if errors.Is(err, errors.ErrUnknownCommand) {
		msg += ". Type 'help' for the command list"
	}
	return msg
}
