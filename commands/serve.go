package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nester/handlers"
	"nester/ingest"
	"nester/viewer"
)

const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	listen   string
	driver   string
	dsn      string
	viewer   bool
	interval time.Duration
}

func serveCommand(a *app) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the collector",
		Long: "Accept scan results on POST /api/data and serve the stored results. " +
			"With --viewer a table of the stored results is shown in the terminal while the server runs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("listen") {
				a.conf.Server.Listen = f.listen
			}
			if flags.Changed("db-driver") {
				a.conf.Database.Driver = f.driver
			}
			if flags.Changed("db-dsn") {
				a.conf.Database.DSN = f.dsn
			}
			if flags.Changed("refresh") {
				a.conf.Viewer.RefreshInterval = f.interval
			}
			if err := a.conf.Validate(); err != nil {
				return err
			}
			return a.serve(cmd, f.viewer)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.listen, "listen", ":5000", "Address to listen on")
	fl.StringVar(&f.driver, "db-driver", "sqlite", "Database driver (sqlite, mysql)")
	fl.StringVar(&f.dsn, "db-dsn", "nester.db", "SQLite file or MySQL DSN")
	fl.BoolVar(&f.viewer, "viewer", false, "Show the results table in the terminal")
	fl.DurationVar(&f.interval, "refresh", 5*time.Second, "Viewer refresh interval")
	return cmd
}

func (a *app) serve(cmd *cobra.Command, withViewer bool) error {
	closeLog, err := a.setupLogger(withViewer)
	if err != nil {
		return err
	}
	defer closeLog()

	st, coord, err := a.openCollector(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	gin.SetMode(a.conf.Server.Mode)
	h := handlers.NewScanHandler(coord)
	h.MaxBodyBytes = a.conf.Server.MaxBodyBytes
	router := handlers.NewRouter(h, a.log)
	srv := &http.Server{
		Addr:              a.conf.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("listen", srv.Addr).Msg("collector listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	if a.conf.PubSub.Enabled() {
		client, err := pubsub.NewClient(ctx, a.conf.PubSub.Project)
		if err != nil {
			cancel()
			_ = g.Wait()
			return errors.Wrap(err, "failed to create pubsub client")
		}
		defer client.Close()

		sub, err := ingest.NewSubscriber(client, a.conf.PubSub.Subscription, coord, a.log)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return sub.Run(ctx) })
	}

	if withViewer {
		g.Go(func() error {
			// quitting the table stops the whole process
			defer cancel()
			model := viewer.NewModel(coord, a.conf.Viewer.RefreshInterval)
			_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return errors.Wrap(err, "viewer failed")
			}
			return nil
		})
	}

	err = g.Wait()
	a.log.Info().Msg("collector stopped")
	return err
}
