package commands

import (
	"fmt"
	"strings"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/catalog"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/storage"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <catalog-name|url>",
	Short: "Download an image into the local cache without flashing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	fetcher := newFetcher(ctx, cfg)

	name, url := args[0], args[0]
	if !strings.Contains(url, "://") {
		entries, _, err := loadCatalog(ctx, cfg, fetcher)
		if err != nil {
			return err
		}
		entry, ok := catalog.Find(entries, args[0])
		if !ok {
			return fmt.Errorf("no catalog entry named %q", args[0])
		}
		name, url = entry.Name, entry.URL
	}

	materializer, shutdown, err := newMaterializer(ctx, cfg, repo, storage.NewCache(cfg.CacheDir), fetcher)
	if err != nil {
		return err
	}
	defer shutdown()

	path, err := materializer.Materialize(ctx, url, name)
	if err != nil {
		return err
	}

	fmt.Println(path)
	return nil
}
