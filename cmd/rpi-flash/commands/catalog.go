package commands

import (
	"context"
	"fmt"

	"github.com/Sn0wAlice/rpi-os-flash/internal/config"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/catalog"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/storage"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var catalogS3Prefix string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the operating system images available for download",
	Long: `Lists the OS catalog. When the catalog cannot be fetched the last downloaded copy is
shown instead. With --s3 the objects under an s3://bucket/prefix are listed as images.`,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.Flags().StringVar(&catalogS3Prefix, "s3", "", "List images under an s3://bucket/prefix instead of the catalog")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fetcher := newFetcher(ctx, cfg)

	var entries []catalog.Entry
	if catalogS3Prefix != "" {
		entries, err = listS3Images(ctx, fetcher, catalogS3Prefix)
	} else {
		var stale bool
		entries, stale, err = loadCatalog(ctx, cfg, fetcher)
		if stale {
			fmt.Println("Catalog could not be fetched, showing the last downloaded copy")
		}
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No images found")
		return nil
	}

	fmt.Printf("%-50s %-12s %-10s %s\n", "NAME", "RELEASED", "SIZE", "URL")
	fmt.Println("--------------------------------------------------------------------------------------------------------")

	for _, e := range entries {
		released := e.ReleaseDate
		if released == "" {
			released = "-"
		}
		size := "-"
		if e.DownloadSize > 0 {
			size = humanize.IBytes(uint64(e.DownloadSize))
		}
		fmt.Printf("%-50s %-12s %-10s %s\n", e.Name, released, size, e.URL)
	}

	return nil
}

// loadCatalog lists the configured catalog within catalog-timeout.
func loadCatalog(ctx context.Context, cfg *config.Config, fetcher storage.Fetcher) ([]catalog.Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.CatalogTimeout)
	defer cancel()

	return catalog.NewClient(fetcher, cfg.CatalogURL, cfg.CacheDir).List(ctx)
}

func listS3Images(ctx context.Context, router *storage.Router, prefix string) ([]catalog.Entry, error) {
	s3Client, ok := router.S3.(*storage.S3Client)
	if !ok {
		return nil, fmt.Errorf("S3 is not configured")
	}
	urls, err := s3Client.List(ctx, prefix)
	if err != nil {
		return nil, errors.Wrap(err, "S3 listing failed")
	}
	return catalog.FromURLs(urls), nil
}
