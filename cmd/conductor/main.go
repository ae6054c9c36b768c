// Conductor orchestrates AI requests for the CRM and runs the batching task
// queue behind them.
//
// Usage:
//
//	# Start the service with defaults and CONDUCTOR_* environment overrides
//	conductor run
//
//	# Start with a configuration file, reloading provider settings on change
//	conductor run --config /etc/conductor/config.yaml
//
//	# Check a configuration file
//	conductor validate --config config.yaml
//
//	# List archived tasks
//	conductor archive list --status failed --format csv
//
//	# Show version information
//	conductor version
package main

func main() {
	Execute()
}
