package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

// options holds the benchmark settings
type options struct {
	targetURL      string
	workers        int
	duration       time.Duration
	bookings       int
	duplicateRatio float64
	output         string
}

// counters are updated by every worker
type counters struct {
	total       uint64
	ok200       uint64 // Acknowledged, including redeliveries
	bad400      uint64
	failed500   uint64
	failOther   uint64
	transportErrors uint64
	redelivered uint64
}

type results struct {
	DurationSec    float64 `json:"duration_sec"`
	Workers        int     `json:"workers"`
	TotalRequests  uint64  `json:"total_requests"`
	ThroughputRPS  float64 `json:"throughput_rps"`
	Acknowledged   uint64  `json:"acknowledged"`
	Redelivered    uint64  `json:"redelivered"`
	BadRequest     uint64  `json:"bad_request"`
	ServerError    uint64  `json:"server_error"`
	OtherStatus    uint64  `json:"other_status"`
	TransportError uint64  `json:"transport_errors"`
	ErrorRatePct   float64 `json:"error_rate_pct"`
}

var opts options

var rootCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Replay booking webhooks against a running invoicesync instance",
	Long: `Posts synthetic booking notifications to /webhook from concurrent workers.

A share of the deliveries (--duplicate-ratio) repeats a booking id that was
already sent, the way the provider redelivers, so the invoice store's
deduplication is exercised under load.

Example:
  benchmark --url http://localhost:8080 --workers 20 --duration 1m --bookings 500`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.workers < 1 {
			return fmt.Errorf("--workers must be at least 1")
		}
		if opts.bookings < 1 {
			return fmt.Errorf("--bookings must be at least 1")
		}
		if opts.duplicateRatio < 0 || opts.duplicateRatio > 1 {
			return fmt.Errorf("--duplicate-ratio must be between 0 and 1")
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Starting benchmark: %s | Workers: %d | Duration: %s\n", opts.targetURL, opts.workers, opts.duration)
		ctx, cancel := context.WithTimeout(cmd.Context(), opts.duration)
		defer cancel()

		res := run(ctx, opts, &http.Client{Timeout: 30 * time.Second})
		return report(cmd.OutOrStdout(), opts.output, res)
	},
}

func init() {
	rootCmd.Flags().StringVar(&opts.targetURL, "url", "http://localhost:8080", "API Base URL")
	rootCmd.Flags().IntVar(&opts.workers, "workers", 10, "Number of concurrent workers")
	rootCmd.Flags().DurationVar(&opts.duration, "duration", 30*time.Second, "Test duration")
	rootCmd.Flags().IntVar(&opts.bookings, "bookings", 1000, "Number of distinct booking ids to cycle through")
	rootCmd.Flags().Float64Var(&opts.duplicateRatio, "duplicate-ratio", 0.2, "Share of deliveries that repeat an already sent booking")
	rootCmd.Flags().StringVar(&opts.output, "output", "results_webhook.json", "File to save results to, empty to skip")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, client *http.Client) results {
	var c counters
	var next atomic.Int64

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(o.workers)
	for i := 0; i < o.workers; i++ {
		go func(seed int64) {
			defer wg.Done()
			worker(ctx, o, client, rand.New(rand.NewSource(seed)), &next, &c)
		}(start.UnixNano() + int64(i))
	}
	wg.Wait()

	return summarize(&c, o.workers, time.Since(start))
}

func worker(ctx context.Context, o options, client *http.Client, rng *rand.Rand, next *atomic.Int64, c *counters) {
	for ctx.Err() == nil {
		sent := next.Load()
		var bookingID int64
		if sent > 0 && rng.Float64() < o.duplicateRatio {
			// Redeliver one of the bookings already sent
			bookingID = rng.Int63n(min(sent, int64(o.bookings))) + 1
			atomic.AddUint64(&c.redelivered, 1)
		} else {
			bookingID = (next.Add(1)-1)%int64(o.bookings) + 1
		}

		body, _ := json.Marshal(map[string]any{
			"booking_id":        bookingID,
			"booking_hash":      fmt.Sprintf("bench-%d", bookingID),
			"notification_type": "create",
		})

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.targetURL+"/webhook", bytes.NewReader(body))
		if err != nil {
			atomic.AddUint64(&c.transportErrors, 1)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			atomic.AddUint64(&c.transportErrors, 1)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		atomic.AddUint64(&c.total, 1)
		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&c.ok200, 1)
		case http.StatusBadRequest:
			atomic.AddUint64(&c.bad400, 1)
		case http.StatusInternalServerError:
			atomic.AddUint64(&c.failed500, 1)
		default:
			atomic.AddUint64(&c.failOther, 1)
		}
	}
}

func summarize(c *counters, workers int, d time.Duration) results {
	total := atomic.LoadUint64(&c.total)
	failures := atomic.LoadUint64(&c.bad400) + atomic.LoadUint64(&c.failed500) + atomic.LoadUint64(&c.failOther)

	res := results{
		DurationSec:    d.Seconds(),
		Workers:        workers,
		TotalRequests:  total,
		Acknowledged:   atomic.LoadUint64(&c.ok200),
		Redelivered:    atomic.LoadUint64(&c.redelivered),
		BadRequest:     atomic.LoadUint64(&c.bad400),
		ServerError:    atomic.LoadUint64(&c.failed500),
		OtherStatus:    atomic.LoadUint64(&c.failOther),
		TransportError: atomic.LoadUint64(&c.transportErrors),
	}
	if d > 0 {
		res.ThroughputRPS = float64(total) / d.Seconds()
	}
	if total > 0 {
		res.ErrorRatePct = float64(failures) / float64(total) * 100
	}
	return res
}

func report(w io.Writer, filename string, res results) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if filename == "" {
		return nil
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("unable to save results: %w", err)
	}
	defer file.Close()
	return json.NewEncoder(file).Encode(res)
}
