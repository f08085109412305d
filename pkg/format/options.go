package format

// Options controls formatting behavior
type Options struct {
	UseColors bool
	UseIcons  bool
	Indent    bool // Re-indent JSON replies
}

// DefaultOptions returns sensible defaults for an interactive terminal
func DefaultOptions() Options {
	return Options{
		UseColors: true,
		UseIcons:  true,
		Indent:    true,
	}
}

// PlainOptions returns options for pipes and log files
func PlainOptions() Options {
	return Options{Indent: true}
}

// Icons used in front of status lines
var Icons = map[string]string{
	"ready":  "✔",
	"error":  "❌",
	"stream": "🔔",
	"stop":   "🛑",
	"bye":    "👋",
}

func iconIf(name string, opts Options) string {
	if !opts.UseIcons {
		return ""
	}
	return Icons[name] + " "
}
