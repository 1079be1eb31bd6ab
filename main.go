package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/showcase/cmd"
	"github.com/tphakala/showcase/internal/buildinfo"
)

// Injected at build time:
// go build -ldflags "-X main.version=v1.2.0 -X main.buildDate=2025-01-31"
var (
	version   = ""
	buildDate = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	build := buildinfo.NewContext(version, buildDate, "")
	err := cmd.Execute(ctx, build, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}
