// Corsgate is an HTTP gateway that enforces a CORS policy in front of an
// application.
//
// It validates the Origin of every request against a hot-reloadable policy,
// answers preflight requests itself, bounds request duration with a 504
// timeout guard and exposes an admin API for runtime policy changes.
//
// Usage:
//
//	# Start the gateway in front of an application
//	ALLOWED_ORIGINS=https://app.example.com corsgate run --upstream http://127.0.0.1:3000
//
//	# Start with a configuration file
//	corsgate run --config /etc/corsgate/config.yaml
//
//	# Check the policy the environment would produce
//	corsgate check --policy-file policy.yaml
//
//	# Show recorded policy changes
//	corsgate history --db /var/lib/corsgate/history.db
//
//	# Show version information
//	corsgate version
package main

import (
	"os"

	"mercator-hq/corsgate/pkg/cli"
)

func main() {
	os.Exit(cli.ExitCode(Execute()))
}
