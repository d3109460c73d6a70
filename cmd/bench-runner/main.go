package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nazeru/tx-lab-shop-go/internal/bench"
	"github.com/nazeru/tx-lab-shop-go/internal/shopclient"
)

func main() {
	baseURL := flag.String("base-url", getenv("SHOP_BASE_URL", "http://localhost:8080"), "shop-service base URL")
	stock := flag.Int("stock", 10, "units of the contested product")
	buyers := flag.Int("buyers", 100, "number of sessions racing for the product")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	output := flag.String("output", "", "optional output path for JSON result")
	flag.Parse()

	if *stock < 0 {
		fmt.Fprintln(os.Stderr, "stock must be >= 0")
		os.Exit(1)
	}
	if *buyers <= 0 {
		fmt.Fprintln(os.Stderr, "buyers must be > 0")
		os.Exit(1)
	}
	if *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency must be > 0")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := shopclient.New(*baseURL, &http.Client{})
	result, err := bench.RunOversell(ctx, client, bench.Config{
		Stock:       *stock,
		Buyers:      *buyers,
		Concurrency: *concurrency,
		Timeout:     *timeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bench failed: %v\n", err)
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}

	if *output != "" {
		if err := writeJSON(*output, result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
			os.Exit(1)
		}
	}

	if !result.Consistent() {
		fmt.Fprintf(os.Stderr, "inconsistent result: placed=%d stock=%d final_stock=%d\n",
			result.Placed, result.Stock, result.FinalStock)
		os.Exit(2)
	}
}

func writeJSON(path string, result bench.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
