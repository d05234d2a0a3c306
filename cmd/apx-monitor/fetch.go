package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dd0wney/cluso-apx/pkg/server"
	"github.com/dd0wney/cluso-apx/pkg/tap"
)

// snapshotMsg carries one poll of the status API
type snapshotMsg struct {
	status *server.Status
	nodes  []server.NodeStatus
	err    error
	at     time.Time
}

// tapMsg carries one port update received from the tap
type tapMsg struct {
	msg *tap.Message
}

// statusAPI polls the server's HTTP status endpoints
type statusAPI struct {
	base   string
	client *http.Client
}

func newStatusAPI(base string) *statusAPI {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &statusAPI{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 3 * time.Second},
	}
}

func (a *statusAPI) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (a *statusAPI) snapshot(ctx context.Context) snapshotMsg {
	msg := snapshotMsg{at: time.Now()}
	var status server.Status
	if err := a.get(ctx, "/status", &status); err != nil {
		msg.err = err
		return msg
	}
	msg.status = &status
	msg.err = a.get(ctx, "/nodes", &msg.nodes)
	return msg
}

// pollCmd fetches one snapshot
func (a *statusAPI) pollCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return a.snapshot(ctx)
	}
}

// receiveTap forwards tap messages to the program until the subscriber is
// closed
func receiveTap(sub tap.Subscriber, p *tea.Program) {
	for {
		m, err := sub.Receive()
		if errors.Is(err, tap.ErrMalformed) {
			continue
		}
		if err != nil {
			return
		}
		p.Send(tapMsg{msg: m})
	}
}
