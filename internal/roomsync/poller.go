package roomsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"focusroom/internal/model"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultMaxAttempts  = 3
)

type PollerOptions struct {
	Interval    time.Duration
	MaxAttempts uint
	// RetryInterval is the first backoff delay between attempts.
	RetryInterval time.Duration
	HTTPClient    *http.Client
	Logger        logrus.FieldLogger
}

// Poller is the pull channel. A snapshot is at most one interval plus one
// round trip stale.
type Poller struct {
	endpoint    string
	roomCode    string
	interval    time.Duration
	maxAttempts uint
	retryDelay  time.Duration
	client      *http.Client
	logger      logrus.FieldLogger

	group   singleflight.Group
	refresh chan struct{}
}

// StatusError is a non-2xx answer from the presence endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("presence request failed with status %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether retrying can help.
func (e *StatusError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func NewPoller(baseURL, roomCode string, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		opts.Logger = logger
	}

	return &Poller{
		endpoint:    strings.TrimRight(baseURL, "/") + "/api/presence?roomCode=" + url.QueryEscape(roomCode),
		roomCode:    roomCode,
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryInterval,
		client:      opts.HTTPClient,
		logger:      opts.Logger.WithFields(logrus.Fields{"component": "poller", "room_code": roomCode}),
		refresh:     make(chan struct{}, 1),
	}
}

// Refresh asks Run for an immediate fetch, e.g. after the local user
// changed status. Requests made while one is pending are merged.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Fetch reads the live roster once, retrying transient failures. Concurrent
// callers share a single request.
func (p *Poller) Fetch(ctx context.Context) (Snapshot, error) {
	result, err, _ := p.group.Do(p.roomCode, func() (interface{}, error) {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = p.retryDelay

		return backoff.Retry(ctx, func() (Snapshot, error) {
			snapshot, err := p.fetchOnce(ctx)
			if err == nil {
				return snapshot, nil
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !statusErr.Transient() {
				return Snapshot{}, backoff.Permanent(err)
			}
			p.logger.WithError(err).Debug("presence fetch failed, retrying")
			return Snapshot{}, err
		}, backoff.WithBackOff(policy), backoff.WithMaxTries(p.maxAttempts))
	})
	if err != nil {
		return Snapshot{}, err
	}
	return result.(Snapshot), nil
}

func (p *Poller) fetchOnce(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return Snapshot{}, backoff.Permanent(err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload model.PresenceSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Snapshot{}, fmt.Errorf("decode presence: %w", err)
	}
	if payload.Members == nil {
		payload.Members = []model.MemberView{}
	}
	return Snapshot{
		RoomCode: p.roomCode,
		Members:  payload.Members,
		AsOf:     time.UnixMilli(payload.AsOf).UTC(),
		Source:   SourcePull,
	}, nil
}

// Run fetches immediately, then on every interval and Refresh. Failed
// fetches are reported as degraded snapshots carrying the last good roster.
func (p *Poller) Run(ctx context.Context, onSnapshot func(Snapshot)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	last := Snapshot{RoomCode: p.roomCode, Members: []model.MemberView{}, Source: SourcePull}
	poll := func() {
		snapshot, err := p.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.WithError(err).Warn("presence poll failed")
			degraded := last
			degraded.Degraded = true
			degraded.Err = err
			onSnapshot(degraded)
			return
		}
		last = snapshot
		onSnapshot(snapshot)
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			poll()
		case <-p.refresh:
			poll()
		}
	}
}
