package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qxcheng/macglue/pkg/config"
	"github.com/qxcheng/macglue/protocol/link/loopback"
	"github.com/qxcheng/macglue/protocol/link/mac"
)

// configFile 为空时使用内置的单网卡环回配置
var configFile string

const demoConfig = `
interfaces:
  - name: lo0
    driver: loopback
    mac_addr: "02:00:00:00:00:01"
    loopback:
      ready_after: 2
`

var rootCmd = &cobra.Command{
	Use:   "macglue",
	Short: "MAC driver glue layer",
	Long: `macglue drives MAC drivers through bring-up and moves frames between
them and the packet buffers of the stack above.

Without a configuration file a single loopback interface is used.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Parse([]byte(demoConfig))
	}
	return config.Load(configFile)
}

// newDriver creates the driver named by the interface configuration.
func newDriver(ifc config.InterfaceConfig) (mac.Driver, error) {
	switch ifc.Driver {
	case "loopback":
		opts := loopback.Options{
			Name:          ifc.Name,
			MTU:           ifc.Loopback.MTU,
			ReadyAfter:    ifc.Loopback.ReadyAfter,
			RxSegmentSize: ifc.Loopback.RxSegmentSize,
		}
		if ifc.Loopback.GMAC {
			opts.ID = mac.ModuleGMAC
		}
		return loopback.New(opts), nil
	}
	return nil, fmt.Errorf("unknown driver %q", ifc.Driver)
}
