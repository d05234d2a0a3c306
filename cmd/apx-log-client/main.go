package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/client"
	"github.com/dd0wney/cluso-apx/pkg/eventlog"
	"github.com/dd0wney/cluso-apx/pkg/filemanager"
	"github.com/dd0wney/cluso-apx/pkg/logging"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "APX server address")
	duration := flag.Duration("duration", 10*time.Second, "How long to listen (0 listens until a signal)")
	asJSON := flag.Bool("json", false, "Print events as JSON lines")
	dump := flag.String("dump", "", "Print the events of a binary event log file and exit")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn or error")
	flag.Parse()

	logger := logging.NewLogger("text", os.Stderr, logging.ParseLevel(*logLevel))
	out := &eventPrinter{json: *asJSON}

	if *dump != "" {
		if err := dumpFile(*dump, out); err != nil {
			logger.Error("failed to read event log", logging.Path(*dump), logging.Error(err))
			os.Exit(1)
		}
		return
	}

	c := client.New(
		client.WithLogger(logger),
		client.WithConnectHook(func(fm *filemanager.Manager) {
			eventlog.NewClientRecorder(fm, out.print, logger)
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), client.DefaultHandshakeTimeout)
	err := c.Connect(ctx, *addr)
	cancel()
	if err != nil {
		logger.Error("failed to connect", logging.Remote(*addr), logging.Error(err))
		os.Exit(1)
	}
	defer c.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}
	select {
	case <-sigCh:
	case <-timeout:
	}
}

func dumpFile(path string, out *eventPrinter) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return eventlog.ReadBinaryLog(f, func(_ uint64, e eventlog.Event) error {
		out.print(e)
		return nil
	})
}

type eventPrinter struct {
	mu   sync.Mutex
	json bool
}

func (p *eventPrinter) print(e eventlog.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		fmt.Println(string(data))
		return
	}
	fmt.Printf("%s %s\n", e.Time.Local().Format("15:04:05.000"), e.Text())
}
