package sl

import (
	"log/slog"
)

// Err creates a slog.Attr with the given error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Jar creates a slog.Attr naming the jar an operation works on.
func Jar(id string) slog.Attr {
	return slog.String("jar", id)
}
