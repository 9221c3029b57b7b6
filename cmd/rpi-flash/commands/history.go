package commands

import (
	"fmt"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past flash attempts",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of entries to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	flashes, err := repo.ListFlashes(historyLimit)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(flashes) == 0 {
		fmt.Println("No flashes recorded")
		return nil
	}

	fmt.Printf("%-20s %-10s %-16s %-10s %-40s %s\n", "WHEN", "STATUS", "DEVICE", "WRITTEN", "IMAGE", "ERROR")
	fmt.Println("--------------------------------------------------------------------------------------------------------------")

	for _, f := range flashes {
		errMsg := f.ErrorMessage
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Printf("%-20s %-10s %-16s %-10s %-40s %s\n",
			f.CreatedAt, f.Status, f.Device, humanize.IBytes(uint64(f.BytesWritten)), f.ImageName, errMsg)
	}

	return nil
}
