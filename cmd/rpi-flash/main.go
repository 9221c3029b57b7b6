package main

import (
	"log/slog"
	"os"

	"github.com/Sn0wAlice/rpi-os-flash/cmd/rpi-flash/commands"
)

func main() {
	// Logs go to stderr so stdout stays clean for progress and tables
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	commands.Execute(level)
}
