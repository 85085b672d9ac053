// Package main - agitator
// Load generator for the galaxy server: simulates many concurrent players
// spamming actions over the websocket and measures ack latency.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/GalacticCiv/internal/domain/simulation"
	"github.com/MRamiBalles/GalacticCiv/internal/network"
)

// Config for the agitator
type Config struct {
	ServerURL      string
	NumClients     int
	ActionInterval time.Duration
	TestDuration   time.Duration
	Subjects       []string
}

// Stats tracks performance metrics
type Stats struct {
	MessagesSent   int64
	Acks           int64
	Rejections     int64
	EventsReceived int64
	Errors         int64
	Latencies      []time.Duration
	mu             sync.Mutex
}

// actionKinds lists plausible action kinds per domain.
var actionKinds = map[simulation.Domain][]string{
	simulation.DomainCharacter:          {"rest", "socialize", "train"},
	simulation.DomainEconomicIndividual: {"save", "spend", "invest"},
	simulation.DomainEconomicBusiness:   {"trade", "expand", "hire"},
	simulation.DomainSocialCultural:     {"festival", "monument"},
	simulation.DomainSocialPolitical:    {"treaty", "denounce", "alliance"},
	simulation.DomainMilitary:           {"patrol", "fortify", "raid"},
}

var defaultSubjects = []string{"TERRAN_UNION", "VEGAN_COLLECTIVE", "KRYL_HEGEMONY", "ORION_TRADERS", "ADMIRAL_REYES"}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	numClients := flag.Int("clients", 50, "Number of concurrent clients")
	interval := flag.Duration("interval", 200*time.Millisecond, "Action interval per client")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	flag.Parse()

	config := Config{
		ServerURL:      *serverURL,
		NumClients:     *numClients,
		ActionInterval: *interval,
		TestDuration:   *duration,
		Subjects:       defaultSubjects,
	}

	fmt.Println("=========================================")
	fmt.Println("AGITATOR - Galaxy Stress Test Tool")
	fmt.Println("=========================================")
	fmt.Printf("Server: %s\n", config.ServerURL)
	fmt.Printf("Clients: %d\n", config.NumClients)
	fmt.Printf("Interval: %v\n", config.ActionInterval)
	fmt.Printf("Duration: %v\n", config.TestDuration)
	fmt.Println("=========================================")

	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupt received, stopping...")
		cancel()
	}()

	stats := runStressTest(ctx, config)
	printResults(stats, config)
}

func runStressTest(ctx context.Context, config Config) *Stats {
	stats := &Stats{
		Latencies: make([]time.Duration, 0, 10000),
	}

	var wg sync.WaitGroup

	fmt.Println("\nStarting clients...")

	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, stats)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}

	fmt.Printf("All %d clients started\n\n", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Printf("Progress: Sent=%d Acks=%d Rejected=%d Events=%d Errors=%d\n",
					atomic.LoadInt64(&stats.MessagesSent), atomic.LoadInt64(&stats.Acks),
					atomic.LoadInt64(&stats.Rejections), atomic.LoadInt64(&stats.EventsReceived),
					atomic.LoadInt64(&stats.Errors))
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, config Config, stats *Stats) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		log.Printf("Client %d: Connection failed: %v", clientID, err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	var pending sync.Map // request id -> send time

	// Replies and broadcast events share the connection; the type field tells them apart
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var reply network.Reply
			if err := json.Unmarshal(msg, &reply); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				continue
			}
			switch reply.Type {
			case "ack", "rejected":
				if reply.Type == "ack" {
					atomic.AddInt64(&stats.Acks, 1)
				} else {
					atomic.AddInt64(&stats.Rejections, 1)
				}
				if sent, ok := pending.LoadAndDelete(reply.RequestID); ok {
					stats.mu.Lock()
					stats.Latencies = append(stats.Latencies, time.Since(sent.(time.Time)))
					stats.mu.Unlock()
				}
			default:
				atomic.AddInt64(&stats.EventsReceived, 1)
			}
		}
	}()

	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	subject := config.Subjects[clientID%len(config.Subjects)]
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req := generateRandomAction(subject, config.Subjects)
			pending.Store(req.RequestID, time.Now())
			if err := conn.WriteJSON(req); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.MessagesSent, 1)
		}
	}
}

func generateRandomAction(subject string, subjects []string) network.ActionRequest {
	domains := simulation.KnownDomains()
	domain := domains[rand.Intn(len(domains))]
	kinds := actionKinds[domain]

	req := network.ActionRequest{
		RequestID: uuid.NewString(),
		Kind:      kinds[rand.Intn(len(kinds))],
		Domain:    string(domain),
		SubjectID: subject,
		Payload:   map[string]any{"cost": float64(rand.Intn(50))},
	}

	switch domain {
	case simulation.DomainSocialPolitical, simulation.DomainMilitary:
		target := subjects[rand.Intn(len(subjects))]
		if target != subject {
			req.TargetID = target
			req.Payload["magnitude"] = float64(rand.Intn(31) - 15)
		}
	}

	return req
}

func printResults(stats *Stats, config Config) {
	fmt.Println("\n=========================================")
	fmt.Println("STRESS TEST RESULTS")
	fmt.Println("=========================================")

	sent := atomic.LoadInt64(&stats.MessagesSent)
	acks := atomic.LoadInt64(&stats.Acks)
	rejected := atomic.LoadInt64(&stats.Rejections)
	eventsRecv := atomic.LoadInt64(&stats.EventsReceived)
	errs := atomic.LoadInt64(&stats.Errors)

	fmt.Printf("Messages Sent:   %d\n", sent)
	fmt.Printf("Acks:            %d\n", acks)
	fmt.Printf("Rejected:        %d\n", rejected)
	fmt.Printf("Events Received: %d\n", eventsRecv)
	fmt.Printf("Errors:          %d\n", errs)
	fmt.Printf("Error Rate:      %.2f%%\n", float64(errs)/float64(sent+1)*100)

	throughput := float64(sent) / config.TestDuration.Seconds()
	fmt.Printf("Throughput:      %.2f msg/sec\n", throughput)

	stats.mu.Lock()
	latencies := stats.Latencies
	stats.mu.Unlock()
	if len(latencies) > 0 {
		var total time.Duration
		lo, hi := latencies[0], latencies[0]
		for _, l := range latencies {
			total += l
			lo = min(lo, l)
			hi = max(hi, l)
		}
		fmt.Printf("\nAck latency:\n")
		fmt.Printf("  Min: %v\n", lo)
		fmt.Printf("  Avg: %v\n", total/time.Duration(len(latencies)))
		fmt.Printf("  Max: %v\n", hi)
	}

	fmt.Println("\n-----------------------------------------")
	switch {
	case errs == 0 && acks > 0:
		fmt.Println("TEST PASSED: System handled the load")
	case float64(errs)/float64(sent+1) < 0.05:
		fmt.Println("TEST WARNING: Some errors detected")
	default:
		fmt.Println("TEST FAILED: High error rate")
	}
	fmt.Println("=========================================")

	results := map[string]any{
		"messages_sent":      sent,
		"acks":               acks,
		"rejections":         rejected,
		"events_received":    eventsRecv,
		"errors":             errs,
		"throughput_per_sec": throughput,
		"config": map[string]any{
			"clients":  config.NumClients,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}

	jsonData, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile("stress_test_results.json", jsonData, 0644); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		return
	}
	fmt.Println("\nResults saved to stress_test_results.json")
}
