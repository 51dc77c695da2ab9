// Command signflow runs the document signing workflow service.
//
// Usage:
//
//	signflow <command> [options]
//
// Commands:
//
//	serve    Start the HTTP service
//	version  Show version information
//	help     Show help message
//
// Examples:
//
//	# Start the service
//	signflow serve -config /etc/signflow/config.yaml
package main

import (
	"os"

	"github.com/georgepadayatti/signflow/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/signflow
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Set version info
	cli.Version = version
	cli.BuildTime = buildTime

	// Run the CLI
	cli.Run(os.Args)
}
