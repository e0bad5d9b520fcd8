package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	checkoutgrpc "github.com/vibast-solutions/ms-go-checkout/app/grpc"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

var (
	healthHTTPURL  string
	healthGRPCAddr string
	healthTimeout  time.Duration
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the HTTP and gRPC health endpoints",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&healthHTTPURL, "http-url", "", "Base URL of the intent service (defaults to CHECKOUT_SERVICE_URL)")
	healthCmd.Flags().StringVar(&healthGRPCAddr, "grpc-addr", "", "gRPC address (defaults to GRPC_HOST:GRPC_PORT)")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second, "Health check timeout")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg := mustLoadConfig()

	baseURL := healthHTTPURL
	if baseURL == "" {
		baseURL = cfg.Checkout.ServiceURL
	}
	grpcAddr := healthGRPCAddr
	if grpcAddr == "" {
		host := cfg.GRPC.Host
		if host == "0.0.0.0" || host == "" {
			host = "127.0.0.1"
		}
		grpcAddr = net.JoinHostPort(host, cfg.GRPC.Port)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	httpHealth, httpErr := checkHTTPHealth(ctx, baseURL)
	if httpErr != nil {
		fmt.Fprintf(out, "http: unavailable: %v\n", httpErr)
	} else {
		fmt.Fprintf(out, "http: status=%s mode=%s stripe_configured=%t\n", httpHealth.Status, httpHealth.Mode, httpHealth.StripeConfigured)
	}

	grpcErr := checkGRPCHealth(ctx, grpcAddr, out)
	if grpcErr != nil {
		fmt.Fprintf(out, "grpc: unavailable: %v\n", grpcErr)
	}

	if httpErr != nil || grpcErr != nil {
		return fmt.Errorf("health check failed")
	}
	return nil
}

func checkHTTPHealth(ctx context.Context, baseURL string) (*types.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}

	var health types.HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// checkGRPCHealth checks overall and intent service health, printing each response as JSON.
func checkGRPCHealth(ctx context.Context, addr string, out io.Writer) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	for _, name := range []string{"", checkoutgrpc.IntentServiceName} {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: name})
		if err != nil {
			return err
		}
		raw, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(resp)
		if err != nil {
			return err
		}
		label := name
		if label == "" {
			label = "overall"
		}
		fmt.Fprintf(out, "grpc %s: %s\n", label, raw)
	}
	return nil
}
