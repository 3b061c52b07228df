package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// simulate hammers one provider-day slot with concurrent booking requests.
// A correct ledger yields exactly one 201 and N-1 conflict responses, no
// matter how many workers race.

type simConfig struct {
	apiBaseURL string
	providerID string
	patientIDs []string
	date       string
	start      string
	end        string
	workers    int
}

type bookRequest struct {
	ProviderID string       `json:"provider_id"`
	PatientID  string       `json:"patient_id"`
	Date       string       `json:"date"`
	Interval   intervalBody `json:"interval"`
}

type intervalBody struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type result struct {
	status  int
	latency time.Duration
	body    string
}

func main() {
	cfg := parseFlags()

	log.Printf("racing %d workers for %s %s-%s on provider %s",
		cfg.workers, cfg.date, cfg.start, cfg.end, cfg.providerID)

	client := &http.Client{Timeout: 10 * time.Second}

	var (
		wg      sync.WaitGroup
		results = make([]result, cfg.workers)
		ready   = make(chan struct{})
		success int64
	)

	for i := 0; i < cfg.workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-ready

			patient := cfg.patientIDs[i%len(cfg.patientIDs)]
			res := book(client, cfg, patient)
			results[i] = res
			if res.status == http.StatusCreated {
				atomic.AddInt64(&success, 1)
			}
		}(i)
	}

	close(ready)
	wg.Wait()

	report(results, success)

	if success != 1 {
		log.Printf("EXPECTED exactly 1 winner, got %d", success)
		os.Exit(1)
	}
	log.Println("single-winner invariant held")
}

func parseFlags() simConfig {
	var cfg simConfig
	var patients string

	flag.StringVar(&cfg.apiBaseURL, "api", "http://localhost:8080", "API base URL")
	flag.StringVar(&cfg.providerID, "provider", "", "provider UUID (required)")
	flag.StringVar(&patients, "patients", "", "comma-separated patient UUIDs (required)")
	flag.StringVar(&cfg.date, "date", time.Now().AddDate(0, 0, 7).Format("2006-01-02"), "booking date")
	flag.StringVar(&cfg.start, "start", "09:00", "slot start HH:MM")
	flag.StringVar(&cfg.end, "end", "09:30", "slot end HH:MM")
	flag.IntVar(&cfg.workers, "workers", 16, "concurrent booking attempts")
	flag.Parse()

	if cfg.providerID == "" || patients == "" {
		flag.Usage()
		os.Exit(2)
	}

	for _, p := range bytes.Split([]byte(patients), []byte(",")) {
		if id := string(bytes.TrimSpace(p)); id != "" {
			cfg.patientIDs = append(cfg.patientIDs, id)
		}
	}
	if len(cfg.patientIDs) == 0 {
		log.Fatal("no patient IDs supplied")
	}
	return cfg
}

func book(client *http.Client, cfg simConfig, patientID string) result {
	payload, _ := json.Marshal(bookRequest{
		ProviderID: cfg.providerID,
		PatientID:  patientID,
		Date:       cfg.date,
		Interval:   intervalBody{Start: cfg.start, End: cfg.end},
	})

	start := time.Now()
	resp, err := client.Post(cfg.apiBaseURL+"/appointments", "application/json", bytes.NewReader(payload))
	latency := time.Since(start)
	if err != nil {
		return result{status: -1, latency: latency, body: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return result{status: resp.StatusCode, latency: latency, body: string(body)}
}

func report(results []result, success int64) {
	counts := make(map[int]int)
	latencies := make([]time.Duration, 0, len(results))
	for _, r := range results {
		counts[r.status]++
		latencies = append(latencies, r.latency)
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	fmt.Println("--- results ---")
	for status, n := range counts {
		fmt.Printf("  status %d: %d\n", status, n)
	}
	if len(latencies) > 0 {
		fmt.Printf("  latency p50=%s p95=%s max=%s\n",
			latencies[len(latencies)/2],
			latencies[len(latencies)*95/100],
			latencies[len(latencies)-1],
		)
	}
	fmt.Printf("  winners: %d\n", success)
}
