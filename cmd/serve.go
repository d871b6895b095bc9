package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vkravcenko/attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the attendance HTTP API",
	Long: `Serve exposes the attendance core over HTTP: enrollment, identification
rounds, gallery listing and the attendance ledger. The API is a thin
adapter; capture happens client-side and frames are uploaded as images.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

func runServe(cmd *cobra.Command, _ []string) error {
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")

	c, err := setupCore(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer c.close()

	server := web.NewServer(host, port, c.controller, c.gallery, c.ledger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
