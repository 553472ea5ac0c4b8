package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/grpcfeed"
	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/serial"
	"github.com/lcalzada-xor/ridwatch/internal/adapters/transport/wifi"
	"github.com/lcalzada-xor/ridwatch/internal/core/ports"
)

func main() {
	serverAddr := flag.String("server", "localhost:9000", "ridwatch gRPC ingest address")
	iface := flag.String("i", "", "Wi-Fi interface in monitor mode")
	pcapFile := flag.String("pcap", "", "Replay a pcap file instead of capturing")
	channels := flag.String("channels", "1,6,11", "Channels to hop (comma separated)")
	dwell := flag.Duration("dwell", 300*time.Millisecond, "Channel dwell time")
	serialPort := flag.String("serial", "", "Serial receiver device")
	baud := flag.Int("baud", serial.DefaultBaudRate, "Serial baud rate")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	var sources []ports.Transport
	if *iface != "" || *pcapFile != "" {
		sources = append(sources, wifi.NewSource(wifi.Options{
			Interface: *iface,
			File:      *pcapFile,
			Channels:  parseChannels(*channels),
			Dwell:     *dwell,
			Debug:     *debug,
		}))
	}
	if *serialPort != "" {
		sources = append(sources, serial.NewSource(serial.Options{
			Port:      *serialPort,
			BaudRate:  *baud,
			Reconnect: true,
		}))
	}
	if len(sources) == 0 {
		slog.Error("no sources: set -i, -pcap or -serial")
		os.Exit(2)
	}

	// 1. Connect to the ingest server
	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		slog.Error("did not connect", "server", *serverAddr, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	// The stream outlives the signal context so the summary can still be read.
	streamCtx, cancelStream := context.WithCancel(context.Background())
	defer cancelStream()
	forwarder, err := grpcfeed.NewForwarder(streamCtx, conn)
	if err != nil {
		slog.Error("could not create stream", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 2. Pump local sources into the stream
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src ports.Transport) {
			defer wg.Done()
			if err := src.Start(ctx, forwarder); err != nil {
				forwarder.OnError(src.Name(), err)
			}
		}(src)
	}

	slog.Info("agent started", "server", *serverAddr, "sources", len(sources))

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
	case <-stopped:
		slog.Info("all sources finished")
	}

	for _, src := range sources {
		src.Close()
	}
	wg.Wait()

	// 3. Close the stream and report what the server accepted
	summary, err := forwarder.Close()
	if err != nil {
		slog.Error("stream close failed", "error", err)
		os.Exit(1)
	}
	slog.Info("agent stopped", "accepted", summary.Accepted, "rejected", summary.Rejected)
}

func parseChannels(s string) []int {
	var out []int
	for _, p := range strings.Split(s, ",") {
		ch, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || ch <= 0 {
			slog.Warn("ignoring channel", "value", p)
			continue
		}
		out = append(out, ch)
	}
	return out
}
