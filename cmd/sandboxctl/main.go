// Command sandboxctl is the operator-facing diagnostics tool for the
// syscall sandbox: it reports whether the current machine can run one,
// and whether a policy file parses and validates, without ever spawning
// or tracing a real process.
package main

import (
	"fmt"
	"os"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tracegate/pkg/tracer"
)

var rootCmd = &cobra.Command{
	Use:   "sandboxctl",
	Short: "Diagnostics for the ptrace syscall sandbox",
	Long:  `sandboxctl reports platform support and validates sandbox policy files, without spawning a tracee.`,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check the current machine's platform preconditions",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := tracer.ProbePlatform()
		if err != nil {
			fmt.Fprintf(os.Stderr, "platform probe failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("platform OK: arch=%s kernel=%s\n", info.Arch, info.KernelRelease)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <policy.toml>",
	Short: "Validate a sandbox policy file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadPolicy(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "policy rejected: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("policy OK: write cap %s, tracee fds (%d,%d), forkserver fds (%d,%d)\n",
			formatBytes(cfg.WriteMaxBytes()),
			cfg.TraceeReadFD(), cfg.TraceeWriteFD(),
			cfg.ForkserverReadFD(), cfg.ForkserverWriteFD())
		return nil
	},
}

// formatBytes renders a byte count the way an operator at an interactive
// terminal wants to read it; piped output (scripts, CI logs) gets the
// exact number instead, since humanize.IBytes loses precision a script
// parsing this output might care about.
func formatBytes(n int) string {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return humanize.IBytes(uint64(n))
	}
	return fmt.Sprintf("%d bytes", n)
}

func init() {
	rootCmd.AddCommand(probeCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
