// Command loadtest drives GET /api/v1/search with concurrent workers and
// reports throughput, latency percentiles, cache tiers and status codes.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-queries consultas.txt] [-rps 200]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/carsearch/internal/searcher/handler"
)

var defaultQueries = []string{
	"honda civic",
	"civic 2014",
	"toyota corolla automatico",
	"hilux 2022 diesel",
	"fiat uno",
	"volkswagen gol 2012",
	"chevrolet onix",
	"strada cabine dupla",
	"renault kwid",
	"hb20 manual",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	RPS         float64
	Limit       int
	Rerank      bool
	Queries     []string
}

// sample is one completed request. Transport failures have Status 0.
type sample struct {
	latency time.Duration
	status  int
	tier    string
}

type recorder struct {
	mu      sync.Mutex
	samples []sample
}

func (r *recorder) add(s sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

// Summary is the aggregate of a run.
type Summary struct {
	Total, OK, Failed int
	RPS               float64
	Min, Avg, Max     time.Duration
	StdDev            time.Duration
	P50, P90, P99     time.Duration
	Tiers             map[string]int
	Codes             map[int]int
}

func (r *recorder) summarize(elapsed time.Duration) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{Total: len(r.samples), Tiers: map[string]int{}, Codes: map[int]int{}}
	var latencies []time.Duration
	for _, smp := range r.samples {
		if smp.status < 200 || smp.status >= 300 {
			s.Failed++
		} else {
			s.OK++
		}
		if smp.status == 0 {
			continue
		}
		s.Codes[smp.status]++
		if smp.tier != "" {
			s.Tiers[smp.tier]++
		}
		latencies = append(latencies, smp.latency)
	}
	if elapsed > 0 {
		s.RPS = float64(s.Total) / elapsed.Seconds()
	}
	if len(latencies) == 0 {
		return s
	}
	slices.Sort(latencies)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	s.Avg = sum / time.Duration(len(latencies))
	var sq float64
	for _, l := range latencies {
		d := float64(l - s.Avg)
		sq += d * d
	}
	s.StdDev = time.Duration(math.Sqrt(sq / float64(len(latencies))))
	s.Min, s.Max = latencies[0], latencies[len(latencies)-1]
	s.P50 = percentile(latencies, 50)
	s.P90 = percentile(latencies, 90)
	s.P99 = percentile(latencies, 99)
	return s
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.Float64Var(&cfg.RPS, "rps", 0, "overall request rate cap, 0 for none")
	flag.IntVar(&cfg.Limit, "limit", 10, "results per query")
	flag.BoolVar(&cfg.Rerank, "rerank", false, "request the year re-rank")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in car queries)")
	flag.Parse()

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Queries = defaultQueries
	if *queryFile != "" {
		var err error
		if cfg.Queries, err = loadQueries(*queryFile); err != nil {
			fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("carsearch load test: %s, %d workers, %s, %d queries\n",
		cfg.BaseURL, cfg.Concurrency, cfg.Duration, len(cfg.Queries))
	start := time.Now()
	rec := run(context.Background(), cfg)
	summary := rec.summarize(time.Since(start))
	printSummary(os.Stdout, summary)
	if summary.OK == 0 {
		fmt.Fprintln(os.Stderr, "no request succeeded; is the search service running?")
		os.Exit(1)
	}
}

func loadQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			queries = append(queries, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return queries, nil
}

func searchURL(cfg Config, query string) string {
	v := url.Values{"q": {query}, "limit": {strconv.Itoa(cfg.Limit)}}
	if cfg.Rerank {
		v.Set("rerank", "true")
	}
	return cfg.BaseURL + "/api/v1/search?" + v.Encode()
}

// run issues requests until cfg.Duration elapses. Requests cut short by
// the end of the run are not recorded.
func run(parent context.Context, cfg Config) *recorder {
	ctx, cancel := context.WithTimeout(parent, cfg.Duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency)
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer client.CloseIdleConnections()

	rec := &recorder{}
	g, ctx := errgroup.WithContext(ctx)
	for w := range cfg.Concurrency {
		g.Go(func() error {
			for i := w; ; i += cfg.Concurrency {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				s, err := fire(ctx, client, searchURL(cfg, cfg.Queries[i%len(cfg.Queries)]))
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
				}
				rec.add(s)
			}
		})
	}
	g.Wait()
	return rec
}

func fire(ctx context.Context, client *http.Client, target string) (sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return sample{}, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return sample{latency: time.Since(start)}, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return sample{
		latency: time.Since(start),
		status:  resp.StatusCode,
		tier:    resp.Header.Get(handler.CacheHeader),
	}, nil
}

func printSummary(w io.Writer, s Summary) {
	rows := [][]string{
		{"requests", strconv.Itoa(s.Total)},
		{"ok", strconv.Itoa(s.OK)},
		{"failed", strconv.Itoa(s.Failed)},
		{"req/s", strconv.FormatFloat(s.RPS, 'f', 1, 64)},
		{"min", s.Min.String()},
		{"avg", s.Avg.String()},
		{"p50", s.P50.String()},
		{"p90", s.P90.String()},
		{"p99", s.P99.String()},
		{"max", s.Max.String()},
		{"stddev", s.StdDev.String()},
	}
	for _, tier := range slices.Sorted(maps.Keys(s.Tiers)) {
		rows = append(rows, []string{"cache " + tier, strconv.Itoa(s.Tiers[tier])})
	}
	for _, code := range slices.Sorted(maps.Keys(s.Codes)) {
		rows = append(rows, []string{"status " + strconv.Itoa(code), strconv.Itoa(s.Codes[code])})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("metric", "value").
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
