package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/appstore/internal/catalog"
	"github.com/3cpo-dev/appstore/internal/server"
	"github.com/3cpo-dev/appstore/internal/telemetry"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "appstore-catalog",
		Short:         "Serve a software catalog and its scripts over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			dataRoot, _ := cmd.Flags().GetString("data-root")
			db, _ := cmd.Flags().GetString("db")
			return serve(addr, dataRoot, db)
		},
	}
	cmd.Flags().String("addr", ":8001", "listen address")
	cmd.Flags().String("data-root", envOr("DATA_ROOT", "data"), "catalog data root")
	cmd.Flags().String("db", "", "serve a SQLite index instead of the data root directory")
	return cmd
}

func serve(addr, dataRoot, db string) error {
	var src catalog.Source = catalog.NewDir(dataRoot)
	if db != "" {
		store, err := catalog.NewStore(db)
		if err != nil {
			return err
		}
		defer store.Close()
		src = catalog.NewSQLite(store)
	}

	srv := &server.CatalogServer{
		Source:     src,
		StaticRoot: dataRoot,
		Monitor:    telemetry.NewMonitor(telemetry.NewCollector(false)),
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(addr) }()
	fmt.Fprintf(os.Stdout, "appstore-catalog listening on %s\n", addr)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigc:
	}
	fmt.Fprintln(os.Stdout, "appstore-catalog shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
