package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vkravcenko/attendance/internal/session"
)

var attendCmd = &cobra.Command{
	Use:   "attend",
	Short: "Identify a captured frame and mark attendance",
	Long: `Attend runs one identification round against the enrolled gallery and,
on a match, records attendance exactly once per identity per day.

The frame comes from --image; camera integration is the job of whatever
produces that file. An unknown face and a frame without a face are normal
outcomes, not errors.

Examples:
  # Identify a captured frame and mark attendance
  attendance attend --image frame.jpg

  # Machine-readable result
  attendance attend --image frame.jpg --json`,
	RunE: runAttend,
}

func init() {
	rootCmd.AddCommand(attendCmd)

	attendCmd.Flags().String("image", "", "Path to the captured frame (required)")
	attendCmd.Flags().String("note", "", "Operator note stored with the attendance record")
	attendCmd.Flags().Bool("json", false, "Output the session result as JSON")
	_ = attendCmd.MarkFlagRequired("image")
}

func runAttend(cmd *cobra.Command, _ []string) error {
	imagePath, _ := cmd.Flags().GetString("image")
	note, _ := cmd.Flags().GetString("note")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("reading captured frame: %w", err)
	}

	c, err := setupCore(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer c.close()

	capture := func(context.Context) ([]byte, error) {
		return imageData, nil
	}

	result, runErr := c.controller.IdentifyAndMark(cmd.Context(), capture, note)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		return runErr
	}

	printSessionResult(result)
	return runErr
}

func printSessionResult(result session.Result) {
	switch result.Status {
	case session.StatusNoFace:
		fmt.Println("No face detected in the captured frame.")
	case session.StatusAmbiguous:
		fmt.Printf("Frame contains %d faces; identification refused (multi-face policy: reject).\n", result.FaceCount)
	case session.StatusUnknown:
		fmt.Println("Face not recognized.")
	case session.StatusMatched:
		if result.Mark.Duplicate {
			fmt.Printf("Recognized %s (distance %.3f); already recorded today.\n", result.Identity, result.Distance)
		} else {
			fmt.Printf("Attendance marked for %s (distance %.3f).\n", result.Identity, result.Distance)
		}
		if result.FaceCount > 1 {
			fmt.Printf("Warning: %d faces were present in the frame; the first was used.\n", result.FaceCount)
		}
	case session.StatusCancelled:
		fmt.Println("Capture cancelled.")
	}
}
