// Command handosc-peer is a stand-in for the sound patch on the receiving end
// of handosc. It answers /connect probes and logs the telemetry it receives.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/handshake"
	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/osc"
)

func main() {
	var (
		host       = flag.String("host", "127.0.0.1", "Address to listen on and reply to")
		listenPort = flag.Int("listen-port", 9100, "Port receiving probes and telemetry")
		replyPort  = flag.Int("reply-port", 7300, "Port the /connect reply is sent to")
		every      = flag.Duration("summary-every", 5*time.Second, "Interval between traffic summaries")
	)
	flag.Parse()

	srv, err := osc.Listen(*host, *listenPort)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer srv.Close()
	client, err := osc.NewClient(*host, *replyPort)
	if err != nil {
		log.Fatalf("reply socket: %v", err)
	}
	defer client.Close()

	srv.Register(handshake.DefaultAddress, func(msg osc.Message) {
		reply, violations := handshake.Answer(msg.Address, msg.Args)
		for _, v := range violations {
			log.Printf("Error: %s", v)
		}
		if err := client.Send(handshake.DefaultAddress, reply); err != nil {
			log.Printf("reply to %v: %v", msg.From, err)
			return
		}
		log.Printf("answered probe from %v: %s", msg.From, reply)
	})

	counts := map[string]uint64{}
	srv.Register(osc.AnyAddress, func(msg osc.Message) {
		if msg.Address == handshake.DefaultAddress {
			return
		}
		counts[msg.Address]++
		if msg.Address == "/record" && len(msg.Args) == 1 {
			if on, ok := msg.Args[0].(bool); ok && !on {
				log.Printf("recording stopped")
			}
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Printf("peer listening on %v, replying to %s:%d", srv.Addr(), *host, *replyPort)

	lastSummary := time.Now()
	for {
		waitCtx, cancel := context.WithTimeout(ctx, *every)
		err := srv.AwaitOne(waitCtx)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return
			}
			log.Printf("receive: %v", err)
			return
		}
		if time.Since(lastSummary) >= *every {
			summarize(counts)
			counts = map[string]uint64{}
			lastSummary = time.Now()
		}
	}
}

func summarize(counts map[string]uint64) {
	if len(counts) == 0 {
		log.Printf("no telemetry received")
		return
	}
	addresses := make([]string, 0, len(counts))
	for a := range counts {
		addresses = append(addresses, a)
	}
	sort.Strings(addresses)
	for _, a := range addresses {
		log.Printf("%-32s %d", a, counts[a])
	}
}
