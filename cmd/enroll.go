package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vkravcenko/attendance/internal/codec"
	"github.com/vkravcenko/attendance/internal/gallery"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll a new identity from an image file",
	Long: `Enroll registers a reference image for a new identity. The image must
contain exactly one face; ambiguous images are rejected rather than
guessed at. The reference image is copied into the gallery directory as
<name>.<ext>.

Examples:
  # Enroll alice from a photo
  attendance enroll alice --image alice.jpg

  # Replace an existing enrollment
  attendance enroll alice --image new-alice.jpg --overwrite`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("image", "", "Path to the enrollment image (required)")
	enrollCmd.Flags().Bool("overwrite", false, "Replace an existing enrollment for this identity")
	_ = enrollCmd.MarkFlagRequired("image")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name := args[0]
	imagePath, _ := cmd.Flags().GetString("image")
	overwrite, _ := cmd.Flags().GetBool("overwrite")

	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("reading enrollment image: %w", err)
	}

	c, err := setupCore(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer c.close()

	entry, err := c.gallery.Register(cmd.Context(), name, imageData, overwrite)
	switch {
	case errors.Is(err, codec.ErrNoFace):
		return fmt.Errorf("no face detected in %s", imagePath)
	case errors.Is(err, codec.ErrMultipleFaces):
		return fmt.Errorf("%s contains more than one face; enrollment needs exactly one", imagePath)
	case errors.Is(err, gallery.ErrInvalidIdentity):
		return fmt.Errorf("%q is not a valid identity: names must not contain path separators or dots", name)
	case errors.Is(err, gallery.ErrDuplicateIdentity):
		return fmt.Errorf("%q is already enrolled; use --overwrite to replace", name)
	case err != nil:
		return err
	}

	fmt.Printf("Enrolled %q (saved as %s)\n", entry.Identity, entry.Source)
	return nil
}
