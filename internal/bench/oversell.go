// Package bench drives many concurrent checkouts against one scarce product and
// checks that the shop never sells more units than it had.
package bench

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazeru/tx-lab-shop-go/internal/shopclient"
)

type Config struct {
	Stock       int
	Buyers      int
	Concurrency int
	Timeout     time.Duration
}

type Result struct {
	Timestamp       string         `json:"timestamp"`
	BaseURL         string         `json:"base_url"`
	ProductID       string         `json:"product_id"`
	Stock           int            `json:"stock"`
	Buyers          int            `json:"buyers"`
	Concurrency     int            `json:"concurrency"`
	Placed          int            `json:"placed"`
	Rejected        int            `json:"rejected"`
	Errors          int            `json:"errors"`
	FinalStock      int            `json:"final_stock"`
	Oversold        bool           `json:"oversold"`
	DurationSeconds float64        `json:"duration_seconds"`
	AvgLatencyMs    float64        `json:"avg_latency_ms"`
	P50LatencyMs    float64        `json:"p50_latency_ms"`
	P90LatencyMs    float64        `json:"p90_latency_ms"`
	P95LatencyMs    float64        `json:"p95_latency_ms"`
	P99LatencyMs    float64        `json:"p99_latency_ms"`
	ThroughputRPS   float64        `json:"throughput_rps"`
	ErrorClasses    map[string]int `json:"error_classes"`
	FirstError      string         `json:"first_error,omitempty"`
}

// Consistent reports whether exactly Stock orders were placed (or every buyer,
// when there were fewer buyers than units) and the remaining stock matches.
func (r Result) Consistent() bool {
	want := r.Stock
	if r.Buyers < want {
		want = r.Buyers
	}
	return r.Placed == want && r.FinalStock == r.Stock-r.Placed && !r.Oversold
}

type recorder struct {
	mu         sync.Mutex
	latencies  []float64
	placed     int
	rejected   int
	errors     int
	classes    map[string]int
	firstError string
}

func (r *recorder) record(latency time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latencies = append(r.latencies, float64(latency.Microseconds())/1000)
	if err == nil {
		r.placed++
		return
	}
	var apiErr *shopclient.APIError
	if errors.As(err, &apiErr) && apiErr.Status < 500 {
		r.rejected++
		r.classes[apiErr.Kind]++
		return
	}
	r.errors++
	r.classes["transport"]++
	if r.firstError == "" {
		r.firstError = err.Error()
	}
}

// RunOversell seeds a product with cfg.Stock units, fills one cart per buyer with a
// single unit and then checks all carts out concurrently.
func RunOversell(ctx context.Context, c *shopclient.Client, cfg Config) (Result, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	p, err := c.CreateProduct(ctx, "bench-"+uuid.NewString()[:8], decimal.NewFromInt(1), cfg.Stock)
	if err != nil {
		return Result{}, fmt.Errorf("seed product: %w", err)
	}

	sessions := make([]string, cfg.Buyers)
	for i := range sessions {
		sessions[i] = "bench-" + uuid.NewString()
		if _, err := c.AddItem(ctx, sessions[i], p.ID, 1); err != nil {
			return Result{}, fmt.Errorf("fill cart %d: %w", i, err)
		}
	}

	rec := &recorder{classes: make(map[string]int)}
	jobs := make(chan string)
	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for session := range jobs {
				reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
				t0 := time.Now()
				_, err := c.PlaceOrder(reqCtx, session, uuid.NewString(), shopclient.Customer{
					Name: "Bench", Email: session + "@bench.local", Address: "1 Bench Way",
				})
				cancel()
				rec.record(time.Since(t0), err)
			}
		}()
	}
	for _, s := range sessions {
		jobs <- s
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	after, err := c.GetProduct(ctx, p.ID)
	if err != nil {
		return Result{}, fmt.Errorf("read final stock: %w", err)
	}

	res := Result{
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		BaseURL:         c.BaseURL,
		ProductID:       p.ID,
		Stock:           cfg.Stock,
		Buyers:          cfg.Buyers,
		Concurrency:     cfg.Concurrency,
		Placed:          rec.placed,
		Rejected:        rec.rejected,
		Errors:          rec.errors,
		FinalStock:      after.Stock,
		Oversold:        rec.placed > cfg.Stock || after.Stock < 0,
		DurationSeconds: elapsed.Seconds(),
		ErrorClasses:    rec.classes,
		FirstError:      rec.firstError,
	}
	if elapsed > 0 {
		res.ThroughputRPS = float64(cfg.Buyers) / elapsed.Seconds()
	}
	res.AvgLatencyMs = mean(rec.latencies)
	res.P50LatencyMs, res.P90LatencyMs, res.P95LatencyMs, res.P99LatencyMs = Percentiles(rec.latencies)
	return res, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Percentiles returns p50, p90, p95 and p99 using the nearest-rank method.
func Percentiles(values []float64) (float64, float64, float64, float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return percentile(sorted, 0.50), percentile(sorted, 0.90), percentile(sorted, 0.95), percentile(sorted, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
