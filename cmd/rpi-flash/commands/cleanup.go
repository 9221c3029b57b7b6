package commands

import (
	"fmt"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/db"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	cleanupAll      bool
	cleanupImage    string
	cleanupOrphaned bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove downloaded images from the local cache",
	Long: `Remove downloaded images:
  --all              Remove every cached image
  --image <url>      Remove the cached copy of one image
  --orphaned         Remove cached files not tracked in the database`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove all cached images")
	cleanupCmd.Flags().StringVar(&cleanupImage, "image", "", "Remove a specific image by URL")
	cleanupCmd.Flags().BoolVar(&cleanupOrphaned, "orphaned", false, "Remove untracked cache files")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	cache := storage.NewCache(cfg.CacheDir)

	switch {
	case cleanupAll:
		return cleanupAllImages(repo, cache)
	case cleanupImage != "":
		return cleanupSpecificImage(repo, cache, cleanupImage)
	case cleanupOrphaned:
		return cleanupOrphanedFiles(repo, cache)
	default:
		return fmt.Errorf("must specify --all, --image, or --orphaned")
	}
}

func cleanupAllImages(repo *db.Repository, cache *storage.Cache) error {
	images, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	fmt.Printf("Removing %d cached images...\n", len(images))

	for _, img := range images {
		if err := removeImage(repo, cache, img); err != nil {
			fmt.Printf("Failed to remove %s: %v\n", img.URL, err)
		} else {
			fmt.Printf("Removed: %s\n", img.URL)
		}
	}

	return cleanupOrphanedFiles(repo, cache)
}

func cleanupSpecificImage(repo *db.Repository, cache *storage.Cache, url string) error {
	img, err := repo.GetByURL(url)
	if err != nil {
		return err
	}
	if img == nil {
		// Not tracked, but a copy may still sit in the cache
		if err := cache.Remove(url); err != nil {
			return errors.Wrap(err, "failed to remove cached file")
		}
		fmt.Printf("No record for %s, removed any cached copy\n", url)
		return nil
	}

	if err := removeImage(repo, cache, img); err != nil {
		return errors.Wrap(err, "cleanup failed")
	}

	fmt.Printf("Removed: %s\n", url)
	return nil
}

func removeImage(repo *db.Repository, cache *storage.Cache, img *db.Image) error {
	if img.LocalPath != "" {
		if err := storage.RemoveFile(img.LocalPath); err != nil {
			return errors.Wrap(err, "failed to remove cached file")
		}
	}
	if err := cache.Remove(img.URL); err != nil {
		return errors.Wrap(err, "failed to remove cached file")
	}
	return repo.Delete(img.ID)
}

func cleanupOrphanedFiles(repo *db.Repository, cache *storage.Cache) error {
	images, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	tracked := make(map[string]bool, len(images))
	for _, img := range images {
		if img.LocalPath != "" {
			tracked[img.LocalPath] = true
		}
	}

	files, err := cache.Files()
	if err != nil {
		return errors.Wrap(err, "failed to scan cache")
	}

	removed := 0
	for _, f := range files {
		if tracked[f] {
			continue
		}
		if err := storage.RemoveFile(f); err != nil {
			fmt.Printf("Failed to remove orphaned file %s: %v\n", f, err)
			continue
		}
		fmt.Printf("Removed orphaned file: %s\n", f)
		removed++
	}

	fmt.Printf("Removed %d orphaned files\n", removed)
	return nil
}
