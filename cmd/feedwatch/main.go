// Command feedwatch opens viewers on the feed relay and tallies the events
// they receive. With -share it also drives traffic by sharing a post.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

type tally struct {
	dialed  atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64

	mu     sync.Mutex
	byType map[string]int64
}

func newTally() *tally { return &tally{byType: make(map[string]int64)} }

func (t *tally) record(msg []byte) string {
	var e struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &e); err != nil || e.Type == "" {
		e.Type = "unparsed"
	}
	if e.Type == "messages_dropped" {
		t.dropped.Add(1)
	}
	t.mu.Lock()
	t.byType[e.Type]++
	t.mu.Unlock()
	return e.Type
}

func (t *tally) counts() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.byType))
	for k, v := range t.byType {
		out[k] = v
	}
	return out
}

func main() {
	host := flag.String("host", "localhost:8375", "API host")
	viewers := flag.Int("viewers", 1, "concurrent feed viewers")
	duration := flag.Duration("duration", 30*time.Second, "how long to watch")
	token := flag.String("token", "", "session token; viewers are anonymous without one")
	share := flag.Uint("share", 0, "post ID to share every -interval")
	interval := flag.Duration("interval", 2*time.Second, "share interval")
	verbose := flag.Bool("v", false, "log every event")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	feedURL := url.URL{Scheme: "ws", Host: *host, Path: "/api/ws/feed"}
	t := newTally()

	var wg sync.WaitGroup
	for i := 0; i < *viewers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := watch(ctx, feedURL.String(), *token, t, *verbose); err != nil {
				log.Printf("viewer %d: %v", id, err)
			}
		}(i)
	}

	if *share > 0 {
		go shareLoop(ctx, fmt.Sprintf("http://%s/api/share", *host), *share, *interval)
	}

	<-ctx.Done()
	wg.Wait()
	report(t)
}

// watch holds one viewer connection open until ctx ends.
func watch(ctx context.Context, feedURL, token string, t *tally, verbose bool) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	t.dialed.Add(1)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, feedURL, header)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		t.failed.Add(1)
		return err
	}
	defer func() { _ = conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		kind := t.record(msg)
		if verbose {
			log.Printf("%s %s", kind, msg)
		}
	}
}

func shareLoop(ctx context.Context, shareURL string, postID uint, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	body := fmt.Sprintf(`{"postId":%d}`, postID)
	client := &http.Client{Timeout: 5 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := client.Post(shareURL, "application/json", strings.NewReader(body))
			if err != nil {
				log.Printf("share: %v", err)
				continue
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				log.Printf("share: status %d", resp.StatusCode)
			}
		}
	}
}

func report(t *tally) {
	counts := t.counts()
	types := make([]string, 0, len(counts))
	for k := range counts {
		types = append(types, k)
	}
	sort.Strings(types)

	log.Printf("viewers dialed=%d failed=%d", t.dialed.Load(), t.failed.Load())
	for _, k := range types {
		log.Printf("  %-18s %d", k, counts[k])
	}
	if n := t.dropped.Load(); n > 0 {
		log.Printf("relay dropped messages for slow viewers %d time(s)", n)
	}
}
