package commands

import (
	"fmt"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/device"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List removable drives that can be flashed",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	enumerator, err := device.New(cfg.DeviceBackend, cfg.SysRoot)
	if err != nil {
		return err
	}

	devices, err := enumerator.ListRemovable(cmd.Context())
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No removable drives found")
		return nil
	}

	fmt.Printf("%-20s %-10s %s\n", "DEVICE", "SIZE", "LABEL")
	fmt.Println("------------------------------------------------------------")

	for _, d := range devices {
		fmt.Printf("%-20s %-10s %s\n", d.Identifier, humanize.IBytes(d.SizeBytes), d.Label)
	}

	return nil
}
