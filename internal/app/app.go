package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "score":
		return runScore(args[1:])
	case "admit":
		return runAdmit(args[1:])
	case "publish":
		return runPublish(args[1:])
	case "status":
		return runStatus(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "serve":
		return runServe(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	case "health":
		return runHealth(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "pubgate CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  pubgate <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  score     Score current signals and print ranked topics")
	fmt.Fprintln(os.Stderr, "  admit     Run the admission pipeline once")
	fmt.Fprintln(os.Stderr, "  publish   Release due queue items within the hourly cap")
	fmt.Fprintln(os.Stderr, "  status    Show the queue, hour bucket and active regime")
	fmt.Fprintln(os.Stderr, "  validate  Check snapshot, queue and scheduler config against their schemas")
	fmt.Fprintln(os.Stderr, "  serve     Start the read-only status API")
	fmt.Fprintln(os.Stderr, "  daemon    Run admit and publish on cron schedules")
	fmt.Fprintln(os.Stderr, "  health    Verify ledger database connectivity")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"pubgate <command> -h\" for command-specific flags.")
}
