package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbuckham/reflowctl/internal/supply"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := supply.ListPorts()
		if err != nil {
			return fmt.Errorf("cli: listing ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}
