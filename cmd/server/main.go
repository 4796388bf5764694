package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/app"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/artifacts"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/config"
	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/frontend"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/middleware"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/monitoring"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/ratelimit"
	"github.com/ZanzyTHEbar/credit-risk-whatif/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the state shared by all commands
type cli struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "creditrisk",
		Short: "Credit risk scoring with what-if sweeps",
		Long: `creditrisk serves an interactive page that scores a loan applicant with a
trained classifier and shows how the probability of bad credit moves when one
feature is swept across a range. The predict and whatif commands run the same
scoring from the terminal.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ./creditrisk.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("artifacts", "", "directory holding the model, feature order and encoders")

	_ = c.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("artifacts.dir", flags.Lookup("artifacts"))

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}
	serve.Flags().Int("port", 0, "listen port")
	_ = c.v.BindPFlag("server.port", serve.Flags().Lookup("port"))

	root.AddCommand(serve, c.predictCmd(), c.whatIfCmd())
	return root
}

// bootstrap loads configuration and artifacts. A missing artifact is fatal.
func (c *cli) bootstrap(logOut io.Writer) (config.Config, *monitoring.Logger, *artifacts.Artifacts, error) {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	logger := monitoring.NewLoggerTo(logOut, monitoring.ParseLevel(cfg.Log.Level))

	art, err := artifacts.NewProvider(cfg.ArtifactsLoader()).Get()
	if err != nil {
		logger.ArtifactLogger("", "", 0, 0, err)
		return config.Config{}, nil, nil, err
	}
	logger.ArtifactLogger(art.ModelPath, art.ModelKind, len(art.FeatureOrder()), len(art.Encoders.Features()), nil)

	return cfg, logger, art, nil
}

func (c *cli) serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, art, err := c.bootstrap(os.Stdout)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)

	store := session.NewStore(cfg.Server.SessionTTL)
	defer apperrors.SafeClose(store, "session store")

	limiter := ratelimit.NewRateLimiter(cfg.Limiter())
	defer apperrors.SafeClose(limiter, "rate limiter")

	tmpl, err := frontend.LoadPageTemplate()
	if err != nil {
		return err
	}

	var compressor *middleware.Compressor
	if gz := cfg.Compression(); gz != nil {
		compressor = middleware.NewCompressor(*gz)
	}

	metrics := monitoring.NewMetrics()
	runner := app.NewRunner(app.NewEngine(art), store, monitoring.NewRecorder(logger, metrics))

	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.Server.Port),
		Handler: newRouter(serverDeps{
			runner:      runner,
			tmpl:        tmpl,
			metrics:     metrics,
			logger:      logger,
			limiter:     limiter,
			hardening:   cfg.Hardening(),
			corsOrigins: cfg.Server.CORSOrigins,
			compressor:  compressor,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.SystemLogger("server_start", fmt.Sprintf("listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		logger.Error("Server failed to start", "error", err)
		return err
	case <-ctx.Done():
	}

	logger.SystemLogger("server_shutdown", "draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return err
	}

	logger.SystemLogger("server_exit", "clean shutdown")
	return nil
}
