package cmd

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/streamworks/flvdemux/config"
	"github.com/streamworks/flvdemux/internal/ingest"
	"github.com/streamworks/flvdemux/internal/liveview"
	"github.com/streamworks/flvdemux/internal/util"
)

// NewServeCommand runs the ingest and liveview servers together, mirroring
// device_connect_server.go's start/wait-for-signal/stop shape.
func NewServeCommand() *cobra.Command {
	var ingestAddr, liveviewAddr string
	var proxyProtocol bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest and live-view servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(ingestAddr, liveviewAddr, proxyProtocol)
		},
	}

	cmd.Flags().StringVar(&ingestAddr, "ingest-addr", config.GetIngestAddr(), "TCP address for the ingest server")
	cmd.Flags().StringVar(&liveviewAddr, "liveview-addr", config.GetLiveviewAddr(), "HTTP address for the live-view server")
	cmd.Flags().BoolVar(&proxyProtocol, "proxy-protocol", config.GetIngestProxyProtocol(), "Expect a PROXY protocol header on ingest connections")

	return cmd
}

func runServe(ingestAddr, liveviewAddr string, proxyProtocol bool) error {
	log := util.GetLogger()

	ingestServer, err := ingest.New(ingest.Config{Addr: ingestAddr, ProxyProtocol: proxyProtocol}, log)
	if err != nil {
		return errors.Wrap(err, "serve: start ingest server")
	}
	defer ingestServer.Close()

	hub := liveview.NewHub(log)
	httpServer := &http.Server{Addr: liveviewAddr, Handler: hub}

	go func() {
		log.Info("ingest server listening", "addr", ingestServer.Addr().String())
		if err := ingestServer.Serve(); err != nil {
			log.Error("ingest server stopped", "error", err)
		}
	}()

	go func() {
		log.Info("liveview server listening", "addr", liveviewAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("liveview server stopped", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	httpServer.Close()
	return nil
}
