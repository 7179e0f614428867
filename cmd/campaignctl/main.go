// campaignctl runs rule evaluations and inspects the audit trail from the
// command line, against the same store the HTTP service uses.
//
// Usage:
//
//	# Preview the verdict for one campaign without persisting it
//	campaignctl evaluate 123e4567-e89b-12d3-a456-426614174000 --dry-run
//
//	# Evaluate every managed campaign
//	campaignctl evaluate --all
//
//	# Show the latest audit entries
//	campaignctl history 123e4567-e89b-12d3-a456-426614174000 --limit 20
//
//	# List the rule chain in evaluation order
//	campaignctl rules --rules-file rules.yaml
//
// Configuration is read from the same environment variables as the server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openApp).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
