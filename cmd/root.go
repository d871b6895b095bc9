package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Face-recognition attendance tracking",
	Long: `Attendance identifies a person from a captured image against a gallery
of enrolled reference images and records a time-stamped attendance event,
exactly once per identity per day.

The append-only audit log is the source of truth; the CSV export is a
derived projection rebuilt from the log whenever it is missing or damaged.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
