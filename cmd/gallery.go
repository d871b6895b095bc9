package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/vkravcenko/attendance/internal/config"
	"github.com/vkravcenko/attendance/internal/gallery"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and maintain the enrolled gallery",
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	RunE:  runGalleryList,
}

var galleryReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Re-scan the gallery directory, re-encoding changed references",
	Long: `Reload scans the gallery directory and refreshes the encoding cache.
Unchanged reference images (by content hash) are served from the cache;
new or edited files are re-encoded.`,
	RunE: runGalleryReload,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryReloadCmd)

	galleryReloadCmd.Flags().Bool("force", false, "Discard the encoding cache and re-encode everything")
}

func runGalleryList(cmd *cobra.Command, _ []string) error {
	c, err := setupCore(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer c.close()

	snapshot := c.gallery.Snapshot()
	if len(snapshot) == 0 {
		fmt.Println("No identities enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tSOURCE\tMODIFIED")
	for _, e := range snapshot {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.Identity, e.Source, e.ModTime.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runGalleryReload(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	// Drop the cache first so every reference is genuinely re-encoded
	// when --force is set.
	force, _ := cmd.Flags().GetBool("force")
	if force {
		if err := os.Remove(filepath.Join(cfg.Gallery.Dir, gallery.CacheFileName)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing encoding cache: %w", err)
		}
	}

	total := countGalleryImages(cfg.Gallery.Dir)
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Encoding references"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	c, err := setupCore(cmd.Context(), func() { _ = bar.Add(1) })
	if err != nil {
		return err
	}
	defer c.close()

	fmt.Printf("\nGallery loaded: %d identities from %s\n", c.gallery.Len(), cfg.Gallery.Dir)
	return nil
}
