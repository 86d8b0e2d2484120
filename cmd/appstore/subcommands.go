package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/appstore/internal/catalog"
	"github.com/3cpo-dev/appstore/internal/client"
	"github.com/3cpo-dev/appstore/internal/config"
	"github.com/3cpo-dev/appstore/internal/installer"
	"github.com/3cpo-dev/appstore/internal/server"
	"github.com/3cpo-dev/appstore/internal/telemetry"
)

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	return config.Load(cfgPath)
}

// openSource builds the configured catalog and settles the OS id.
func openSource(cfg config.Config) (catalog.Source, string, error) {
	src, err := catalog.DefaultRegistry().Open(cfg.Catalog)
	if err != nil {
		return nil, "", err
	}
	osID := cfg.Catalog.OSID
	if osID == "" {
		osID = catalog.DetectOSID()
	}
	return src, osID, nil
}

func newDetector(cfg config.Config, collector *telemetry.Collector) *installer.Detector {
	d := installer.NewDetector(cfg.Installer.DetectTimeout)
	if cfg.Installer.DetectConcurrency > 0 {
		d.Concurrency = cfg.Installer.DetectConcurrency
	}
	d.Collector = collector
	return d
}

func apiClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	base, _ := cmd.Flags().GetString("server")
	if base == "" {
		scheme := "http"
		if cfg.Server.TLS.Enabled() {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, cfg.Server.Addr())
	}
	return client.New(base, cfg.Server.Token), nil
}

// Run the installer API
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the installer API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Host, cfg.Server.Port = splitAddr(addr, cfg.Server.Host, cfg.Server.Port)
			}
			src, osID, err := openSource(cfg)
			if err != nil {
				return err
			}

			collector := telemetry.NewCollector(cfg.Telemetry.Enabled)
			defer collector.Shutdown()
			sup := installer.NewSupervisor(src, installer.NewRegistry(), installer.Options{
				OSID:         osID,
				Interpreter:  cfg.Installer.Interpreter,
				WorkDir:      cfg.Installer.WorkDir,
				Frontend:     cfg.Installer.Frontend,
				PollInterval: cfg.Installer.PollInterval,
				StartTimeout: cfg.Installer.StartTimeout,
				Collector:    collector,
			})
			srv := server.New(sup, newDetector(cfg, collector), telemetry.NewMonitor(collector), server.Options{
				Version:     version,
				OSID:        osID,
				CORSOrigins: cfg.Server.CORSOrigins,
				Token:       cfg.Server.Token,
				AssetsDir:   cfg.Server.AssetsDir,
				WebDir:      cfg.Server.WebDir,
			})

			log.Info().
				Str("catalog", src.Name()).
				Str("os_id", osID).
				Str("addr", cfg.Server.Addr()).
				Msg("Starting installer")

			errc := make(chan error, 1)
			go func() {
				if cfg.Server.TLS.Enabled() {
					errc <- srv.ListenAndServeTLS(cfg.Server.Addr(), server.TLSConfig(cfg.Server.TLS))
					return
				}
				errc <- srv.ListenAndServe(cfg.Server.Addr())
			}()
			return waitForShutdown(cmd.Context(), errc, srv.Shutdown)
		},
	}
	cmd.Flags().String("addr", "", "listen address host:port (overrides config)")
	return cmd
}

// splitAddr parses host:port, keeping the fallback for any missing half.
func splitAddr(addr, host string, port int) (string, int) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return host, port
	}
	if h != "" {
		host = h
	}
	if n, err := strconv.Atoi(p); err == nil {
		port = n
	}
	return host, port
}

// waitForShutdown blocks until the listener fails or a signal arrives.
func waitForShutdown(ctx context.Context, errc <-chan error, shutdown func(context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return shutdown(sctx)
}

// List catalog software
func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List installable software and whether it is installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			local, _ := cmd.Flags().GetBool("local")
			osID, _ := cmd.Flags().GetString("os")
			if !local {
				c, err := apiClient(cmd)
				if err != nil {
					return err
				}
				items, err := c.List(cmd.Context(), osID)
				if err != nil {
					return err
				}
				for _, it := range items {
					fmt.Printf("%s\t%s\t%s\n", it.Key, it.Name, installedMark(it.Installed))
				}
				return nil
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			src, detected, err := openSource(cfg)
			if err != nil {
				return err
			}
			if osID == "" {
				osID = detected
			}
			items, err := src.List(cmd.Context(), osID)
			if err != nil {
				return err
			}
			for _, it := range newDetector(cfg, nil).Annotate(cmd.Context(), items) {
				fmt.Printf("%s\t%s\t%s\n", it.Key, it.Name, installedMark(it.Installed))
			}
			return nil
		},
	}
	cmd.Flags().Bool("local", false, "read the catalog directly instead of asking the server")
	cmd.Flags().String("os", "", "os id (default: detected)")
	return cmd
}

func installedMark(ok bool) string {
	if ok {
		return "installed"
	}
	return "-"
}

// Install a key through the server and follow its output
func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <key>",
		Short: "Start an install, stream its output and exit with its return code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			if _, err := c.Install(cmd.Context(), key); err != nil {
				return err
			}
			if detach, _ := cmd.Flags().GetBool("detach"); detach {
				fmt.Println(key)
				return nil
			}
			if err := c.Stream(cmd.Context(), key, func(line string) { fmt.Println(line) }); err != nil {
				return err
			}
			st, err := c.Status(cmd.Context(), key)
			if err != nil {
				return err
			}
			// The stream may end a poll interval before the exit code lands.
			for i := 0; st.Running && i < 20; i++ {
				time.Sleep(250 * time.Millisecond)
				if st, err = c.Status(cmd.Context(), key); err != nil {
					return err
				}
			}
			if st.ReturnCode == nil {
				return fmt.Errorf("%s: no return code reported", key)
			}
			log.Info().Str("key", key).Int("return_code", *st.ReturnCode).Msg("Install finished")
			if *st.ReturnCode != 0 {
				return exitCodeError{code: *st.ReturnCode}
			}
			return nil
		},
	}
	cmd.Flags().Bool("detach", false, "start the install and return immediately")
	return cmd
}

// Show a task's status
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <key>",
		Short: "Show whether an install is running and its return code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			code := "-"
			if st.ReturnCode != nil {
				code = fmt.Sprint(*st.ReturnCode)
			}
			fmt.Printf("%s\trunning=%v\treturn_code=%s\n", st.Key, st.Running, code)
			return nil
		},
	}
}

// Check local installed state
func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <key>",
		Short: "Report whether software is installed on this machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			command, _ := cmd.Flags().GetString("command")
			if command == "" {
				if src, osID, err := openSource(cfg); err == nil {
					if items, err := src.List(cmd.Context(), osID); err == nil {
						for _, it := range items {
							if it.Key == key {
								command = it.CheckCommand
							}
						}
					}
				}
			}
			ok := newDetector(cfg, nil).CheckInstalled(cmd.Context(), key, command)
			fmt.Printf("%s\t%s\n", key, installedMark(ok))
			if !ok {
				return exitCodeError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().String("command", "", "detection command (default: from catalog)")
	return cmd
}

// Manage the SQLite catalog index
func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the catalog index",
	}
	imp := &cobra.Command{
		Use:   "import",
		Short: "Index a data root into a SQLite catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			root, _ := cmd.Flags().GetString("data-root")
			if root == "" {
				root = cfg.Catalog.DataRoot
			}
			db, _ := cmd.Flags().GetString("db")
			if db == "" {
				db = cfg.Catalog.SQLite.Path
			}
			osID, _ := cmd.Flags().GetString("os")
			if osID == "" {
				osID = catalog.DetectOSID()
			}
			if root == "" || db == "" {
				return fmt.Errorf("catalog import: --data-root and --db are required")
			}
			store, err := catalog.NewStore(db)
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := store.Import(cmd.Context(), catalog.NewDir(root), osID)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "imported %d items for %s into %s\n", n, osID, db)
			return nil
		},
	}
	imp.Flags().String("data-root", "", "data root to index (default: catalog.data_root)")
	imp.Flags().String("db", "", "SQLite database path (default: catalog.sqlite.path)")
	imp.Flags().String("os", "", "os id to index (default: detected)")
	cmd.AddCommand(imp)
	return cmd
}
