package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/apx"
	"github.com/dd0wney/cluso-apx/pkg/client"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
)

// assignments collects repeated -set Port=value flags
type assignments []string

func (a *assignments) String() string { return strings.Join(*a, ",") }

func (a *assignments) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected Port=value, got %q", v)
	}
	*a = append(*a, v)
	return nil
}

// printer prints require port values as they arrive from the server
type printer struct {
	logger logging.Logger
}

func (p *printer) InPortDataWritten(nd *nodedata.NodeData, offset, length int) {
	for _, port := range nd.Node().RequirePorts {
		if port.Offset+port.PackLen() <= offset || port.Offset >= offset+length {
			continue
		}
		v, err := nd.ReadRequirePort(port.Name)
		if err != nil {
			p.logger.Warn("failed to read require port", logging.PortName(port.Name), logging.Error(err))
			continue
		}
		fmt.Printf("%s.%s = %s\n", nd.Name(), port.Name, apx.FormatValue(v))
	}
}

func (p *printer) OutPortDataWritten(*nodedata.NodeData, int, int) {}

func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "APX server address")
	definition := flag.String("apx", "", "APX definition file of the local node (required)")
	duration := flag.Duration("duration", 0, "Disconnect after this long (0 waits for a signal)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn or error")
	var sets assignments
	flag.Var(&sets, "set", "Write Port=value to a provide port after connecting (repeatable)")
	flag.Parse()

	logger := logging.NewLogger("text", os.Stderr, logging.ParseLevel(*logLevel))
	if *definition == "" {
		fmt.Fprintln(os.Stderr, "apx-client: -apx is required")
		flag.Usage()
		os.Exit(2)
	}

	node, err := apx.ParseFile(*definition)
	if err != nil {
		logger.Error("failed to parse definition", logging.Path(*definition), logging.Error(err))
		os.Exit(1)
	}
	nd, err := nodedata.FromNode(node)
	if err != nil {
		logger.Error("failed to build node data", logging.NodeName(node.Name), logging.Error(err))
		os.Exit(1)
	}

	c := client.New(client.WithLogger(logger), client.WithPortHandler(&printer{logger: logger}))
	if err := c.AttachLocalNode(nd); err != nil {
		logger.Error("failed to attach node", logging.NodeName(node.Name), logging.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), client.DefaultHandshakeTimeout)
	err = c.Connect(ctx, *addr)
	cancel()
	if err != nil {
		logger.Error("failed to connect", logging.Remote(*addr), logging.Error(err))
		os.Exit(1)
	}
	defer c.Close()
	logger.Info("connected", logging.Remote(*addr), logging.NodeName(node.Name))

	for _, s := range sets {
		name, text, _ := strings.Cut(s, "=")
		v, err := apx.ParseValue(text)
		if err != nil {
			logger.Error("invalid value", logging.PortName(name), logging.Error(err))
			os.Exit(1)
		}
		if err := nd.WriteProvidePort(name, v); err != nil {
			logger.Error("failed to write port", logging.PortName(name), logging.Error(err))
			os.Exit(1)
		}
	}

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
