// Package status pushes playback snapshots to the content service and polls
// it for queued remote commands. Both directions are best-effort: a kiosk
// keeps playing through network outages and simply degrades to local-only.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"slidekiosk/internal/playback"
)

// defaultPollInterval is how often queued remote commands are fetched.
const defaultPollInterval = 3 * time.Second

// Reporter posts snapshots for one device. Failures are logged and dropped;
// the next slide change will carry fresher state anyway.
type Reporter struct {
	base     string
	deviceID string
	client   *http.Client
	log      zerolog.Logger
}

// NewReporter builds a reporter for deviceID against baseURL.
func NewReporter(baseURL, deviceID string, timeout time.Duration, log zerolog.Logger) *Reporter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reporter{
		base:     strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		client:   &http.Client{Timeout: timeout},
		log:      log.With().Str("component", "status").Logger(),
	}
}

// Report sends snap in the background. It never blocks the caller.
func (r *Reporter) Report(snap playback.Snapshot) {
	go func() {
		if err := r.post(snap); err != nil {
			r.log.Warn().Err(err).Msg("status report dropped")
		}
	}()
}

func (r *Reporter) post(snap playback.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/devices/%s/status", r.base, r.deviceID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("status post: status %d", resp.StatusCode)
	}
	return nil
}

// Poller fetches queued commands for one device and hands them to a
// dispatch callback in queue order.
type Poller struct {
	base     string
	deviceID string
	client   *http.Client
	clock    clockwork.Clock
	interval time.Duration
	dispatch func(playback.Command)
	log      zerolog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewPoller builds a poller dispatching each fetched command to dispatch.
func NewPoller(baseURL, deviceID string, interval time.Duration, clock clockwork.Clock, dispatch func(playback.Command), log zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		base:     strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		client:   &http.Client{Timeout: interval},
		clock:    clock,
		interval: interval,
		dispatch: dispatch,
		log:      log.With().Str("component", "poller").Logger(),
	}
}

// Start polls on the configured interval until Stop is called.
func (p *Poller) Start() {
	p.done = make(chan struct{})
	ticker := p.clock.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.Chan():
				p.PollOnce(context.Background())
			}
		}
	}()
}

// Stop halts polling. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		if p.done != nil {
			close(p.done)
		}
	})
}

// PollOnce fetches and dispatches any queued commands. Network or decode
// failures are logged and swallowed.
func (p *Poller) PollOnce(ctx context.Context) {
	url := fmt.Sprintf("%s/api/devices/%s/commands", p.base, p.deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.log.Warn().Err(err).Msg("poll request build failed")
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Msg("command poll failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return
	}
	if resp.StatusCode != http.StatusOK {
		p.log.Debug().Int("status", resp.StatusCode).Msg("command poll rejected")
		return
	}

	var cmds []playback.Command
	if err := json.NewDecoder(resp.Body).Decode(&cmds); err != nil {
		p.log.Warn().Err(err).Msg("command decode failed")
		return
	}
	for _, cmd := range cmds {
		p.dispatch(cmd)
	}
}
