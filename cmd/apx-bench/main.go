package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/client"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/server"
	"github.com/dd0wney/cluso-apx/pkg/store"
)

const providerDefinition = "APX/1.2\n" +
	"N\"BenchProvider\"\n" +
	"P\"Counter\"L:=0\n" +
	"\n"

func consumerDefinition(i int) string {
	return fmt.Sprintf("APX/1.2\nN\"BenchConsumer%d\"\nR\"Counter\"L:=0\n\n", i)
}

// consumer records when each counter value arrives
type consumer struct {
	sentAt    []atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	last      atomic.Uint32
	done      chan struct{}
	doneOnce  sync.Once
	final     uint32
}

func (c *consumer) InPortDataWritten(nd *nodedata.NodeData, _, _ int) {
	v, err := nd.ReadRequirePort("Counter")
	if err != nil {
		return
	}
	n, ok := v.(int64)
	if !ok || n == 0 || int(n) >= len(c.sentAt) {
		return
	}
	if sent := c.sentAt[n].Load(); sent != 0 {
		c.mu.Lock()
		c.latencies = append(c.latencies, time.Duration(time.Now().UnixNano()-sent))
		c.mu.Unlock()
	}
	c.last.Store(uint32(n))
	if uint32(n) == c.final {
		c.doneOnce.Do(func() { close(c.done) })
	}
}

func (c *consumer) OutPortDataWritten(*nodedata.NodeData, int, int) {}

func main() {
	consumers := flag.Int("consumers", 4, "Number of consumer clients")
	writes := flag.Int("writes", 10000, "Number of provider writes")
	interval := flag.Duration("interval", 0, "Pause between writes")
	timeout := flag.Duration("timeout", 30*time.Second, "Time to wait for delivery")
	flag.Parse()

	fmt.Printf("🔥 APX Routing Benchmark\n")
	fmt.Printf("========================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Consumers: %d\n", *consumers)
	fmt.Printf("  Writes: %d\n", *writes)
	fmt.Printf("  Interval: %v\n\n", *interval)

	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	srv, err := server.New(cfg, server.WithMetrics(metrics.NewRegistry()), server.WithStore(store.NewMemoryStore()))
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer srv.Stop()
	addr := srv.Addr().String()

	sentAt := make([]atomic.Int64, *writes+1)
	sinks := make([]*consumer, *consumers)
	for i := range sinks {
		sinks[i] = &consumer{sentAt: sentAt, done: make(chan struct{}), final: uint32(*writes)}
		c := connect(addr, consumerDefinition(i), client.WithPortHandler(sinks[i]))
		defer c.Close()
	}
	provider := connect(addr, providerDefinition)
	defer provider.Close()
	nd := provider.NodeManager().FindNodeData("BenchProvider")

	waitFor(func() bool { return srv.NodeManager().Router().ConnectorCount() >= *consumers }, 5*time.Second)

	fmt.Printf("📊 Writing %d values...\n", *writes)
	start := time.Now()
	for i := 1; i <= *writes; i++ {
		sentAt[i].Store(time.Now().UnixNano())
		if err := nd.WriteProvidePort("Counter", int64(i)); err != nil {
			log.Fatalf("Write %d failed: %v", i, err)
		}
		if *interval > 0 {
			time.Sleep(*interval)
		}
	}
	writeTime := time.Since(start)

	deadline := time.After(*timeout)
	for i, s := range sinks {
		select {
		case <-s.done:
		case <-deadline:
			fmt.Printf("⚠️  Consumer %d stopped at %d of %d\n", i, s.last.Load(), *writes)
		}
	}
	total := time.Since(start)

	var all []time.Duration
	for _, s := range sinks {
		s.mu.Lock()
		all = append(all, s.latencies...)
		s.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	fmt.Printf("\n📈 Results\n")
	fmt.Printf("==========\n")
	fmt.Printf("  Write time: %v (%.0f writes/sec)\n", writeTime, float64(*writes)/writeTime.Seconds())
	fmt.Printf("  Delivery time: %v\n", total)
	expected := *writes * *consumers
	fmt.Printf("  Updates received: %d of %d (%.1f%%)\n", len(all), expected, 100*float64(len(all))/float64(expected))
	if len(all) > 0 {
		fmt.Printf("  Latency p50: %v\n", percentile(all, 0.50))
		fmt.Printf("  Latency p99: %v\n", percentile(all, 0.99))
		fmt.Printf("  Latency max: %v\n", all[len(all)-1])
	}
}

func connect(addr, definition string, opts ...client.Option) *client.Client {
	nd, err := nodedata.NewFactory().FromDefinition([]byte(definition))
	if err != nil {
		log.Fatalf("Invalid definition: %v", err)
	}
	c := client.New(opts...)
	if err := c.AttachLocalNode(nd); err != nil {
		log.Fatalf("Failed to attach node: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx, addr); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	return c
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			log.Fatalf("Timed out waiting for nodes to attach")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	return sorted[int(p*float64(len(sorted)-1))]
}
