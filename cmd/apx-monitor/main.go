package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dd0wney/cluso-apx/pkg/tap"
)

func main() {
	statusAddr := flag.String("status", "127.0.0.1:8080", "Server status address")
	tapURL := flag.String("tap", "", "NNG URL of the server's port update tap")
	topic := flag.String("topic", "", "Only follow tap updates whose topic starts with this (e.g. Engine/)")
	interval := flag.Duration("interval", time.Second, "Status poll interval")
	flag.Parse()

	m := initialModel(newStatusAPI(*statusAddr), *interval, *tapURL)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if *tapURL != "" {
		sub, err := tap.NewNNGSubscriber(*tapURL, *topic)
		if err != nil {
			fmt.Fprintf(os.Stderr, "apx-monitor: %v\n", err)
			os.Exit(1)
		}
		defer sub.Close()
		go receiveTap(sub, p)
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "apx-monitor: %v\n", err)
		os.Exit(1)
	}
}
