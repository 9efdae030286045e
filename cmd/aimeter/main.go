package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ongoingai/meter/internal/version"
)

const defaultConfigPath = "aimeter.yaml"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return 0
	case "price":
		return runPrice(args[1:], os.Stdout, os.Stderr)
	case "report":
		return runReport(args[1:], os.Stdout, os.Stderr)
	case "config":
		return runConfig(args[1:], os.Stdout, os.Stderr)
	default:
		printUsage(os.Stderr)
		return 2
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: aimeter <command> [flags]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  price    Look up model rates and estimate call costs")
	fmt.Fprintln(out, "  report   Summarize recorded cost events from storage")
	fmt.Fprintln(out, "  config   Validate the aimeter configuration file")
	fmt.Fprintln(out, "  version  Print the aimeter version")
}

func runConfig(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "validate" {
		fmt.Fprintln(errOut, "Usage: aimeter config validate [-config path]")
		return 2
	}
	return runConfigValidate(args[1:], out, errOut)
}
