package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sn0wAlice/rpi-os-flash/internal/config"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/catalog"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/device"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/flash"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/image"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/pipeline"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/progress"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/safety"
	"github.com/Sn0wAlice/rpi-os-flash/pkg/storage"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const customImageOption = "Custom OS (local file)"

var (
	flashImage  string
	flashURL    string
	flashFile   string
	flashDevice string
	flashYes    bool
)

var flashCmd = &cobra.Command{
	Use:   "flash",
	Short: "Write an image onto a removable drive",
	Long: `Writes an OS image byte for byte onto a removable drive, replacing everything on it.

The image is a catalog entry (--image), a URL (--url) or a local file (--file). Without
them, and without --device, the choice is asked for interactively. The drive is only
written after an explicit "yes" (or --yes).`,
	RunE: runFlash,
}

func init() {
	rootCmd.AddCommand(flashCmd)
	flashCmd.Flags().StringVar(&flashImage, "image", "", "Catalog entry name")
	flashCmd.Flags().StringVar(&flashURL, "url", "", "Image URL (http, https or s3)")
	flashCmd.Flags().StringVar(&flashFile, "file", "", "Local image file")
	flashCmd.Flags().StringVar(&flashDevice, "device", "", "Target device, e.g. /dev/sdb")
	flashCmd.Flags().BoolVarP(&flashYes, "yes", "y", false, "Do not ask for confirmation")
	flashCmd.MarkFlagsMutuallyExclusive("image", "url", "file")
}

func runFlash(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	in := bufio.NewReader(os.Stdin)

	enumerator, err := device.New(cfg.DeviceBackend, cfg.SysRoot)
	if err != nil {
		return err
	}

	repo, err := openRepository(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	fetcher := newFetcher(ctx, cfg)
	cache := storage.NewCache(cfg.CacheDir)

	img, err := selectImage(ctx, cfg, fetcher, in, interactive)
	if err != nil {
		return err
	}

	deviceID := flashDevice
	if deviceID == "" && interactive {
		deviceID, err = selectDevice(ctx, enumerator, in, os.Stdout)
		if err != nil {
			return err
		}
	}

	var confirm safety.ConfirmFn = safety.Decline
	switch {
	case flashYes:
		confirm = safety.AssumeYes
	case interactive:
		confirm = safety.TerminalPrompt(in, os.Stdout)
	default:
		slog.Warn("confirmation_unavailable", "reason", "stdin is not a terminal and --yes was not given")
	}

	reporter := progress.NewReporter(os.Stdout, progress.WithInterval(cfg.ProgressInterval))

	runner := &pipeline.Runner{
		Enumerator: enumerator,
		Resolver:   image.NewResolver(cache),
		Engine:     flash.NewEngine(nil),
		Confirm:    confirm,
		Validator:  safety.NewValidator(),
		Progress:   reporter.Update,
		History:    repo,
	}

	if img.Kind == image.KindRemote {
		materializer, shutdown, err := newMaterializer(ctx, cfg, repo, cache, fetcher)
		if err != nil {
			return err
		}
		defer shutdown()
		runner.Materializer = materializer
	}

	result, err := runner.Run(ctx, pipeline.Selection{Image: img, DeviceID: deviceID})
	switch {
	case errors.Is(err, pipeline.ErrDeclined):
		fmt.Println("Aborted, nothing was written.")
		return nil
	case err != nil:
		if n, ok := flash.BytesWritten(err); ok {
			fmt.Println()
			fmt.Printf("%s written to %s before the failure. The drive is not bootable.\n", humanize.IBytes(uint64(n)), deviceID)
		}
		return err
	}

	reporter.Finish(result.Outcome.TotalBytesWritten)
	fmt.Printf("%s is ready. It is safe to remove %s.\n", img.DisplayName, result.Device.Identifier)
	return nil
}

// selectImage builds the image descriptor from flags, or asks for one.
// A catalog that cannot be loaded only removes the remote options.
func selectImage(ctx context.Context, cfg *config.Config, fetcher storage.Fetcher, in *bufio.Reader, interactive bool) (image.Descriptor, error) {
	switch {
	case flashFile != "":
		return image.Local(flashFile), nil
	case flashURL != "":
		return image.Remote(flashURL, flashURL), nil
	case flashImage != "":
		entries, _, err := loadCatalog(ctx, cfg, fetcher)
		if err != nil {
			return image.Descriptor{}, err
		}
		entry, ok := catalog.Find(entries, flashImage)
		if !ok {
			return image.Descriptor{}, fmt.Errorf("no catalog entry named %q", flashImage)
		}
		return image.Remote(entry.Name, entry.URL), nil
	case !interactive:
		return image.Descriptor{}, fmt.Errorf("%w: pass --image, --url or --file", pipeline.ErrNoSelection)
	}

	entries, stale, err := loadCatalog(ctx, cfg, fetcher)
	if err != nil {
		fmt.Println("The OS catalog is unavailable, only local files can be flashed.")
		entries = nil
	} else if stale {
		fmt.Println("Using the last downloaded catalog.")
	}

	return promptImage(in, os.Stdout, entries)
}

func promptImage(in *bufio.Reader, out io.Writer, entries []catalog.Entry) (image.Descriptor, error) {
	options := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		options = append(options, catalog.Label(e))
	}
	options = append(options, customImageOption)

	i, err := selectOne(in, out, "Operating system", options)
	if err != nil {
		return image.Descriptor{}, fmt.Errorf("%w: %v", pipeline.ErrNoSelection, err)
	}
	if i < len(entries) {
		return image.Remote(entries[i].Name, entries[i].URL), nil
	}

	path, err := promptText(in, out, "Path to image file")
	if err != nil {
		return image.Descriptor{}, fmt.Errorf("%w: %v", pipeline.ErrNoSelection, err)
	}
	return image.Local(path), nil
}

func selectDevice(ctx context.Context, enumerator device.Enumerator, in *bufio.Reader, out io.Writer) (string, error) {
	devices, err := enumerator.ListRemovable(ctx)
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("%w: no removable drives found", pipeline.ErrNoSelection)
	}

	options := make([]string, len(devices))
	for i, d := range devices {
		options[i] = fmt.Sprintf("%s  %s  %s", d.Identifier, humanize.IBytes(d.SizeBytes), d.Label)
	}

	i, err := selectOne(in, out, "Storage device", options)
	if err != nil {
		return "", fmt.Errorf("%w: %v", pipeline.ErrNoSelection, err)
	}
	return devices[i].Identifier, nil
}
