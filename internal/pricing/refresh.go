package pricing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPrimaryURL  = "https://api.ongoingai.com/v1/meter/pricing.json"
	defaultFallbackURL = "https://cdn.ongoingai.com/meter/pricing.json"

	defaultFetchTimeout    = 5 * time.Second
	minFetchTimeout        = 100 * time.Millisecond
	maxFetchTimeout        = 2 * time.Minute
	defaultRefreshInterval = 24 * time.Hour
	minRefreshInterval     = time.Minute
	failureBackoff         = 5 * time.Minute

	maxTableBytes = 8 << 20
)

// allowedSourceHosts is the closed set of hosts a remote rate-table source
// may point at. Anything else is rejected at configuration time.
var allowedSourceHosts = map[string]struct{}{
	"api.ongoingai.com":         {},
	"cdn.ongoingai.com":         {},
	"raw.githubusercontent.com": {},
	"cdn.jsdelivr.net":          {},
}

// Manager owns the current rate table: the bundled default plus an optional
// remotely refreshed replacement. The table it hands out is never nil;
// refresh failures keep the previous table.
type Manager struct {
	mu              sync.RWMutex
	table           *Table
	fetchedAt       time.Time
	retryAt         time.Time
	primaryURL      string
	fallbackURL     string
	fetchTimeout    time.Duration
	refreshInterval time.Duration
	offline         bool

	group  singleflight.Group
	client *http.Client
	logger *slog.Logger
}

// NewManager returns a manager seeded with the bundled table.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		table:           Bundled(),
		primaryURL:      defaultPrimaryURL,
		fallbackURL:     defaultFallbackURL,
		fetchTimeout:    defaultFetchTimeout,
		refreshInterval: defaultRefreshInterval,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Current returns the current rate table immediately. When the table is
// stale and the manager is online, a background refresh is kicked off; the
// caller never waits on the network.
func (m *Manager) Current() *Table {
	m.mu.RLock()
	table := m.table
	stale := time.Since(m.fetchedAt) > m.refreshInterval && !time.Now().Before(m.retryAt)
	offline := m.offline
	m.mu.RUnlock()

	if stale && !offline {
		go m.Refresh(context.Background())
	}
	return table
}

// Refresh fetches a fresh table from the primary source, then the CDN
// fallback, each under an independent timeout. Concurrent callers share one
// in-flight fetch. On exhaustion of both sources the previous table is
// retained and further attempts are held off for a short backoff window;
// refresh failure is never surfaced as an error.
func (m *Manager) Refresh(ctx context.Context) *Table {
	m.mu.RLock()
	offline := m.offline
	m.mu.RUnlock()
	if offline {
		return m.Current()
	}

	result, _, _ := m.group.Do("refresh", func() (any, error) {
		m.mu.RLock()
		sources := []string{m.primaryURL, m.fallbackURL}
		timeout := m.fetchTimeout
		m.mu.RUnlock()

		for _, source := range sources {
			if source == "" {
				continue
			}
			table, err := m.fetch(ctx, source, timeout)
			if err != nil {
				m.logger.Debug("rate table fetch failed", "source", source, "error", err)
				continue
			}
			m.mu.Lock()
			m.table = table
			m.fetchedAt = time.Now()
			m.retryAt = time.Time{}
			m.mu.Unlock()
			m.logger.Debug("rate table refreshed", "source", source, "version", table.Version)
			return table, nil
		}

		m.mu.Lock()
		// Hold off for a short backoff window so a dead endpoint is not
		// hammered on every call, without waiting out the full refresh
		// interval before the next attempt.
		m.retryAt = time.Now().Add(failureBackoff)
		previous := m.table
		m.mu.Unlock()
		m.logger.Warn("rate table refresh exhausted all sources, keeping previous table")
		return previous, nil
	})

	table, _ := result.(*Table)
	if table == nil {
		return Bundled()
	}
	return table
}

func (m *Manager) fetch(ctx context.Context, source string, timeout time.Duration) (*Table, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build rate table request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate table source returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTableBytes))
	if err != nil {
		return nil, fmt.Errorf("read rate table body: %w", err)
	}
	return ParseTable(raw)
}

// SetSources replaces the remote source URLs. Both must be HTTPS and point
// at an allow-listed host; violations are rejected synchronously. An empty
// fallback disables the CDN attempt.
func (m *Manager) SetSources(primary, fallback string) error {
	if err := validateSourceURL(primary); err != nil {
		return err
	}
	if fallback != "" {
		if err := validateSourceURL(fallback); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.primaryURL = primary
	m.fallbackURL = fallback
	m.fetchedAt = time.Time{}
	m.retryAt = time.Time{}
	m.mu.Unlock()
	return nil
}

// SetOffline toggles offline mode. Offline managers never touch the network
// and keep serving whatever table they hold.
func (m *Manager) SetOffline(offline bool) {
	m.mu.Lock()
	m.offline = offline
	m.mu.Unlock()
}

// SetFetchTimeout bounds each individual source attempt.
func (m *Manager) SetFetchTimeout(timeout time.Duration) error {
	if timeout < minFetchTimeout || timeout > maxFetchTimeout {
		return fmt.Errorf("fetch timeout %s out of range [%s, %s]", timeout, minFetchTimeout, maxFetchTimeout)
	}
	m.mu.Lock()
	m.fetchTimeout = timeout
	m.mu.Unlock()
	return nil
}

// SetRefreshInterval sets the staleness window after which Current triggers
// a background refresh.
func (m *Manager) SetRefreshInterval(interval time.Duration) error {
	if interval < minRefreshInterval {
		return fmt.Errorf("refresh interval %s below minimum %s", interval, minRefreshInterval)
	}
	m.mu.Lock()
	m.refreshInterval = interval
	m.mu.Unlock()
	return nil
}

// Reset restores the bundled table and default configuration. Intended for
// tests.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.table = Bundled()
	m.fetchedAt = time.Time{}
	m.retryAt = time.Time{}
	m.primaryURL = defaultPrimaryURL
	m.fallbackURL = defaultFallbackURL
	m.fetchTimeout = defaultFetchTimeout
	m.refreshInterval = defaultRefreshInterval
	m.offline = false
	m.mu.Unlock()
}

func validateSourceURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("rate table source URL cannot be empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("parse rate table source URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("rate table source %q must use https", trimmed)
	}
	host := strings.ToLower(parsed.Hostname())
	if _, ok := allowedSourceHosts[host]; !ok {
		return fmt.Errorf("rate table source host %q is not allow-listed", host)
	}
	return nil
}

var (
	defaultManagerOnce sync.Once
	defaultManager     *Manager
)

// Default returns the process-wide manager.
func Default() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager(nil)
	})
	return defaultManager
}
