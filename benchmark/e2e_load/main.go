// bigpipe E2E Load Benchmark
//
// Measures what matters for a streamed page under concurrent load:
// - time to first byte (shell and parent markup flushed)
// - time to the close frame (every child fragment written)
// - allocation and GC work generated by that load
//
// It serves a real pipe over a loopback listener and drives N concurrent
// HTTP clients that read every response to the end. With -push, each client
// also attaches to its page's realtime channel and measures push latency.
//
// Run:
//
//	cd benchmark/e2e_load
//	go run . -clients=200 -duration=30s -children=8 -delay=20ms
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"regexp"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/bigpipe"
	"github.com/vango-dev/bigpipe/pkg/pagelet"
	"github.com/vango-dev/bigpipe/pkg/realtime"
	"github.com/vango-dev/bigpipe/pkg/render"
)

func main() {
	var (
		clients  = flag.Int("clients", 100, "number of concurrent clients")
		duration = flag.Duration("duration", 15*time.Second, "how long to run the load test")
		children = flag.Int("children", 5, "child pagelets per page")
		delay    = flag.Duration("delay", 10*time.Millisecond, "maximum simulated render time per child")
		mode     = flag.String("mode", "async", "page mode: render, sync, async or pipeline")
		push     = flag.Bool("push", false, "also measure realtime push latency")
	)
	flag.Parse()

	if *clients <= 0 {
		log.Fatal("-clients must be > 0")
	}
	if *duration <= 0 {
		log.Fatal("-duration must be > 0")
	}
	if *children < 0 {
		log.Fatal("-children must be >= 0")
	}
	pageMode, err := pagelet.ParseMode(*mode)
	if err != nil {
		log.Fatal(err)
	}

	// Reduce incidental variability a bit.
	debug.SetGCPercent(100)

	cfg := bigpipe.DefaultConfig()
	cfg.Pagelets = []pagelet.Module{loadPage(pageMode, *children, *delay)}
	var hub *realtime.Hub
	if *push {
		hub = realtime.NewHub(realtime.WithCheckOrigin(func(r *http.Request) bool { return true }))
		cfg.Realtime = hub
	}
	p, err := bigpipe.New(cfg)
	if err != nil {
		log.Fatalf("new pipe: %v", err)
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	serveCtx, stopServe := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		if err := p.Discover(serveCtx); err != nil {
			served <- err
			return
		}
		served <- p.Serve(serveCtx, ln, nil)
	}()
	select {
	case <-p.Ready():
	case err := <-served:
		log.Fatalf("serve: %v", err)
	}
	defer func() {
		stopServe()
		<-served
	}()

	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var (
		rec         recorder
		totalPages  atomic.Uint64
		totalErrors atomic.Uint64
	)

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readRuntimeMetrics()

	transport := &http.Transport{MaxIdleConnsPerHost: *clients}
	client := &http.Client{Transport: transport}

	var wg sync.WaitGroup
	wg.Add(*clients)
	for i := 0; i < *clients; i++ {
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if err := loadOnce(ctx, client, base, hub, &rec); err != nil {
					if ctx.Err() == nil {
						totalErrors.Add(1)
					}
					continue
				}
				totalPages.Add(1)
			}
		}()
	}
	wg.Wait()
	transport.CloseIdleConnections()

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readRuntimeMetrics()

	total := totalPages.Load()
	errs := totalErrors.Load()
	runSeconds := math.Max(0.001, (*duration).Seconds())

	fmt.Println("=== bigpipe E2E Load Benchmark ===")
	fmt.Printf("Clients: %d\n", *clients)
	fmt.Printf("Duration: %s\n", (*duration).String())
	fmt.Printf("Mode: %s\n", pageMode)
	fmt.Printf("Children: %d (up to %s each)\n", *children, *delay)
	fmt.Printf("Total pages: %d\n", total)
	fmt.Printf("Errors: %d\n", errs)
	fmt.Printf("Throughput: %.1f pages/s\n", float64(total)/runSeconds)
	fmt.Println()

	printLatencies("Time to first byte:", rec.sorted(&rec.ttfb))
	printLatencies("Time to close frame:", rec.sorted(&rec.full))
	if *push {
		printLatencies("Realtime push (server push → client read):", rec.sorted(&rec.push))
	}

	fmt.Println("Go runtime / GC (process-wide):")
	fmt.Printf("  alloc:     %.2f MB\n", float64(after.TotalAlloc-before.TotalAlloc)/(1024*1024))
	fmt.Printf("  heap_live: %.2f MB\n", float64(after.HeapAlloc)/(1024*1024))
	fmt.Printf("  num_gc:    %d\n", after.NumGC-before.NumGC)
	fmt.Printf("  gc_pause:  %s (total)\n", time.Duration(after.PauseTotalNs-before.PauseTotalNs))
	fmt.Printf("  gc_pause:  %s (avg)\n", avgPause(after, before))
	fmt.Printf("  gc_cpu:    %.2f%%\n", 100*cpuFraction(afterMetrics, beforeMetrics))
	fmt.Printf("  allocs:    %.2f M objects\n", float64(afterMetrics.heapAllocsObjects-beforeMetrics.heapAllocsObjects)/1_000_000)

	stats := p.Pool().Stats()
	fmt.Println()
	fmt.Println("Instance pool:")
	fmt.Printf("  allocated: %d\n", stats.Allocated)
	fmt.Printf("  reused:    %d\n", stats.Reused)
}

// recorder collects latency samples from all clients.
type recorder struct {
	mu   sync.Mutex
	ttfb []time.Duration
	full []time.Duration
	push []time.Duration
}

func (r *recorder) add(dst *[]time.Duration, d time.Duration) {
	r.mu.Lock()
	*dst = append(*dst, d)
	r.mu.Unlock()
}

func (r *recorder) sorted(src *[]time.Duration) []time.Duration {
	r.mu.Lock()
	out := append([]time.Duration(nil), *src...)
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var channelPattern = regexp.MustCompile(`"channel":"([^"]+)"`)

func loadOnce(ctx context.Context, client *http.Client, base string, hub *realtime.Hub, rec *recorder) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/", nil)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	br := bufio.NewReader(res.Body)
	if _, err := br.Peek(1); err != nil {
		return fmt.Errorf("first byte: %w", err)
	}
	rec.add(&rec.ttfb, time.Since(start))

	body, err := io.ReadAll(br)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", res.StatusCode)
	}
	if !strings.Contains(string(body), render.CloseFrame) {
		return fmt.Errorf("page ended without the close frame")
	}
	rec.add(&rec.full, time.Since(start))

	if hub == nil {
		return nil
	}
	m := channelPattern.FindSubmatch(body)
	if m == nil {
		return fmt.Errorf("bootstrap has no realtime channel")
	}
	return measurePush(ctx, base, hub, string(m[1]), rec)
}

func measurePush(ctx context.Context, base string, hub *realtime.Hub, id string, rec *recorder) error {
	wsURL := "ws" + strings.TrimPrefix(base, "http") + realtime.DefaultPath + "?channel=" + id
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	start := time.Now()
	if err := hub.Push(id, realtime.Message{Type: realtime.MessageReload}); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	var msg realtime.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if msg.Type != realtime.MessageReload {
		return fmt.Errorf("unexpected message %q", msg.Type)
	}
	rec.add(&rec.push, time.Since(start))
	return nil
}

func printLatencies(title string, latencies []time.Duration) {
	fmt.Println(title)
	if len(latencies) == 0 {
		fmt.Println("  no samples recorded")
		fmt.Println()
		return
	}
	fmt.Printf("  min: %s\n", latencies[0])
	fmt.Printf("  p50: %s\n", percentile(latencies, 0.50))
	fmt.Printf("  p95: %s\n", percentile(latencies, 0.95))
	fmt.Printf("  p99: %s\n", percentile(latencies, 0.99))
	fmt.Printf("  max: %s\n", latencies[len(latencies)-1])
	fmt.Println()
}

func avgPause(after, before runtime.MemStats) time.Duration {
	gcCount := after.NumGC - before.NumGC
	if gcCount == 0 {
		return 0
	}
	return time.Duration((after.PauseTotalNs - before.PauseTotalNs) / uint64(gcCount))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type runtimeMetricsSnapshot struct {
	cpuTotalSeconds float64
	cpuGCSeconds    float64

	heapAllocsBytes   uint64
	heapAllocsObjects uint64
}

func readRuntimeMetrics() runtimeMetricsSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
		{Name: "/gc/heap/allocs:bytes"},
		{Name: "/gc/heap/allocs:objects"},
	}
	metrics.Read(samples)

	var out runtimeMetricsSnapshot
	for _, s := range samples {
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotalSeconds = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGCSeconds = s.Value.Float64()
		case "/gc/heap/allocs:bytes":
			out.heapAllocsBytes = s.Value.Uint64()
		case "/gc/heap/allocs:objects":
			out.heapAllocsObjects = s.Value.Uint64()
		}
	}
	return out
}

func cpuFraction(after, before runtimeMetricsSnapshot) float64 {
	total := after.cpuTotalSeconds - before.cpuTotalSeconds
	if total <= 0 {
		return 0
	}
	gc := after.cpuGCSeconds - before.cpuGCSeconds
	if gc < 0 {
		return 0
	}
	return gc / total
}

// loadPage builds a page whose children finish in a scattered order, so the
// multiplexer does real reordering work in pipeline mode.
func loadPage(mode pagelet.Mode, children int, maxDelay time.Duration) pagelet.Module {
	var slots strings.Builder
	slots.WriteString("<main>")
	mods := make([]pagelet.Module, 0, children)
	for i := 0; i < children; i++ {
		name := fmt.Sprintf("c%d", i)
		fmt.Fprintf(&slots, `<div data-pagelet="%s"></div>`, name)

		var d time.Duration
		if children > 1 {
			d = maxDelay * time.Duration((i*7)%children) / time.Duration(children-1)
		}
		mods = append(mods, pagelet.Module{
			Name:     name,
			Producer: sleeper{markup: fmt.Sprintf("<p>child %d</p>", i), delay: d},
		})
	}
	slots.WriteString("</main>")

	return pagelet.Module{
		Name:     "load",
		Path:     "/",
		Mode:     mode,
		Producer: fixed(slots.String()),
		Children: mods,
	}
}

type fixed string

func (f fixed) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	return string(f), nil
}

type sleeper struct {
	markup string
	delay  time.Duration
}

func (s sleeper) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	if s.delay <= 0 {
		return s.markup, nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return s.markup, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
