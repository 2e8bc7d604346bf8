package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/certchain/cmd/certchain/internal/commands"
	"github.com/wolfeidau/certchain/internal/config"
)

var (
	version = "dev"
	cli     struct {
		Issue      commands.IssueCmd      `cmd:"" help:"Issue a root CA and a leaf certificate for a domain"`
		IssueFixed commands.IssueFixedCmd `cmd:"" name:"issue-fixed" help:"Issue a chain from openssl.cnf and v3.ext"`
		Der64      commands.Der64Cmd      `cmd:"" name:"der64" help:"Convert a PEM certificate to DER and print it base64 encoded"`
		Inspect    commands.InspectCmd    `cmd:"" help:"Show a certificate's validity and rotation status"`
		Export     commands.ExportCmd     `cmd:"" help:"Bundle a leaf certificate and key as PKCS#12"`
		List       commands.ListCmd       `cmd:"" help:"List certificates recorded in an output directory"`
		Debug      bool                   `help:"Enable debug mode."`
		LogJSON    bool                   `name:"log-json" help:"Write logs as JSON."`
		Version    kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("certchain"),
		kong.Description("Issue and encode RSA certificate chains."),
		kong.Vars{
			"version": version,
		},
		kong.Configuration(config.YAML, config.DefaultPaths...),
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, LogJSON: cli.LogJSON, Version: version})
	cmd.FatalIfErrorf(err)
}
