package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/nfreject/internal/config"
	"firestige.xyz/nfreject/internal/filter"
)

var validateCmd = &cobra.Command{
	Use:   "validate <filter expression...>",
	Short: "Check a filter expression without opening the device",
	Long: `Join and compile a filter expression the same way nfreject does at startup,
without touching the netfilter queue.

Examples:
  nfreject validate tcp and dst port 22
  nfreject validate "udp or (ip6 and tcp)"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runValidate(cfg.Filter, args, cmd.OutOrStdout())
	},
}

func runValidate(cfg config.FilterConfig, args []string, out io.Writer) error {
	expr, err := filter.Join(args, cfg.MaxLength)
	if err != nil {
		return fatal(err, "error: filter too long")
	}
	if _, err := filter.Compile(expr, int(cfg.SnapLen.Bytes())); err != nil {
		return fatal(err, "error: filter syntax error")
	}
	fmt.Fprintf(out, "VALID: %q\n", expr)
	return nil
}
