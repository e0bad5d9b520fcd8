package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-checkout/app/catalog"
	"github.com/vibast-solutions/ms-go-checkout/app/controller"
	checkoutgrpc "github.com/vibast-solutions/ms-go-checkout/app/grpc"
	"github.com/vibast-solutions/ms-go-checkout/app/metrics"
	"github.com/vibast-solutions/ms-go-checkout/app/middleware"
	"github.com/vibast-solutions/ms-go-checkout/app/provider"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/config"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the payment intent issuance HTTP (Echo) server and the gRPC health server.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, intentService, timerService, cleanup := mustCreateCheckoutServices()
	defer cleanup()

	metrics.MustRegister()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := middleware.NewRateLimiter(cfg.Intent.RateLimitRPS, cfg.Intent.RateLimitBurst, metrics.Prometheus{})
	go limiter.Run(ctx)

	checkoutController := controller.NewCheckoutController(intentService, timerService, cfg.App.Mode)
	e := setupHTTPServer(checkoutController, intentService.Configured(), limiter)
	grpcSrv, lis := setupGRPCServer(cfg, checkoutgrpc.NewHealthServer(intentService))

	if !intentService.Configured() {
		logrus.Warn("Stripe secret key missing or invalid; /create-payment-intent is not registered")
	}

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

// setupHTTPServer mounts the intent route only when a provider is configured, so
// clients observe a 404 when the service is effectively not deployed.
func setupHTTPServer(
	checkoutController *controller.CheckoutController,
	intentsConfigured bool,
	limiter *middleware.RateLimiter,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", checkoutController.Health)
	e.GET("/offer-timer/:visitor", checkoutController.GetOfferTimer)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if intentsConfigured {
		e.POST("/create-payment-intent", checkoutController.CreatePaymentIntent, limiter.Middleware())
	}

	return e
}

func setupGRPCServer(cfg *config.Config, healthServer *checkoutgrpc.HealthServer) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	return checkoutgrpc.NewServer(healthServer), lis
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}
	return cfg
}

func mustCreateCheckoutServices() (*config.Config, *service.IntentService, *service.OfferTimerService, func()) {
	cfg := mustLoadConfig()

	cat, err := catalog.Load(cfg.App.CatalogPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load catalog")
	}

	store, cleanup, err := createAnchorStore(context.Background(), cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize offer timer store")
	}

	stripeProvider := provider.NewStripeProvider(provider.StripeConfig{
		SecretKey:   cfg.Stripe.SecretKey,
		APIBaseURL:  cfg.Stripe.APIBaseURL,
		HTTPTimeout: cfg.Stripe.HTTPTimeout,
		Logger:      logrus.WithField("module", "stripe"),
	})

	intentService := service.NewIntentService(cat, provider.NewRegistry(stripeProvider), cfg.Intent, metrics.Prometheus{})
	timerService := service.NewOfferTimerService(store, cfg.Timer, metrics.Prometheus{})

	return cfg, intentService, timerService, cleanup
}
