package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ValentinKolb/refmap/cmd/util"
	"github.com/ValentinKolb/refmap/lib/common"
	"github.com/ValentinKolb/refmap/lib/refmap/engines/hybrid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var Logger = logger.GetLogger("serve")

// How long in-flight requests may take after a shutdown signal
const shutdownTimeout = 5 * time.Second

var (
	// ServeCmd represents the serve command
	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve a cache over HTTP",
		Long: `Starts an HTTP server in front of a single cache of byte values.

Endpoints:
  GET    /kv/{key}   read a value
  PUT    /kv/{key}   store the request body
  DELETE /kv/{key}   remove a value
  GET    /kv         list all keys
  POST   /reclaim    run one reclaim cycle
  POST   /pressure   signal memory pressure
  GET    /info       cache statistics (JSON)
  GET    /metrics    metrics (Prometheus text format)`,
		PreRunE: processConfig,
		RunE:    run,
	}
	serveCmdConfig *common.CacheConfig
)

func init() {
	key := "endpoint"
	ServeCmd.Flags().String(key, ":8080", util.WrapString("The address to listen on"))
}

// processConfig reads the configuration from flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig = util.GetCacheConfig()
	if _, err := serveCmdConfig.ToOptions(); err != nil {
		return err
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the HTTP server and blocks until it is stopped by SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	opts, err := serveCmdConfig.ToOptions()
	if err != nil {
		return err
	}

	Logger.Infof("starting refmap server")
	Logger.Infof("%s", serveCmdConfig.String())

	cache := hybrid.NewHybridMap[string, []byte](opts)
	defer cache.Close()

	server := &http.Server{
		Addr:    serveCmdConfig.Endpoint,
		Handler: NewHandler(cache, serveCmdConfig.LogLevel == "debug"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		Logger.Infof("Starting HTTP server on %s", serveCmdConfig.Endpoint)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		Logger.Infof("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
