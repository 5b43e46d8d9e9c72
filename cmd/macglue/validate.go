package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validatePrint bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting any driver.

Examples:
  macglue validate -c macglue.yaml
  macglue validate -c macglue.yaml --print`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "VALID: %d interface(s), %d rx / %d tx descriptors, %d buffers of %d bytes\n",
			len(cfg.Interfaces), cfg.Pools.RxPackets, cfg.Pools.TxPackets, cfg.Pools.Buffers, cfg.Pools.BufferSize)
		if validatePrint {
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			cmd.OutOrStdout().Write(out)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validatePrint, "print", false, "print the effective configuration")
}
