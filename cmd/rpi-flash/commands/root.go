package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logLevel *slog.LevelVar

var rootCmd = &cobra.Command{
	Use:   "rpi-flash",
	Short: "Write Raspberry Pi OS images to SD cards and USB drives",
	Long: `Lists removable drives, downloads images from the Raspberry Pi catalog, and writes
an image byte for byte onto a drive after explicit confirmation.`,
	SilenceUsage: true,
}

func Execute(level *slog.LevelVar) {
	logLevel = level
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/rpi-flash.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm", "FSM BoltDB path")
	rootCmd.PersistentFlags().String("cache-dir", ".artifacts/cache", "Directory for downloaded images and the catalog")
	rootCmd.PersistentFlags().String("catalog-url", "", "OS catalog URL (http, https or s3)")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region for s3:// images")
	rootCmd.PersistentFlags().String("device-backend", "lsblk", "Device listing backend: lsblk, udisks or ghw")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")

	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("cache-dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("catalog-url", rootCmd.PersistentFlags().Lookup("catalog-url"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("device-backend", rootCmd.PersistentFlags().Lookup("device-backend"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}
