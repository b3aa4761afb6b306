package ingest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultMaxBodyBytes = 25 << 20
	DefaultFetchTimeout = 25 * time.Second
)

var blockedPrefixStrings = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedPrefixes = func() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(blockedPrefixStrings))
	for _, s := range blockedPrefixStrings {
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}()

var errBodyTooLarge = errors.New("response body exceeds limit")

// HTTPFetcherConfig configures an HTTPFetcher.
type HTTPFetcherConfig struct {
	// BlockPrivateNetworks refuses to dial loopback, private and link-local
	// addresses, including after redirects.
	BlockPrivateNetworks bool
	// RateLimitRPS is the default per-host request rate; 0 disables pacing.
	RateLimitRPS float64
	MaxBodyBytes int64
	UserAgent    string
}

// HTTPFetcher is the net/http Fetcher. It never retries; every failure is
// returned to the caller as a *FetchError.
type HTTPFetcher struct {
	cfg      HTTPFetcherConfig
	strict   *http.Client
	insecure *http.Client

	limiters hostLimiters
}

func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &HTTPFetcher{
		cfg:      cfg,
		strict:   newHTTPClient(cfg.BlockPrivateNetworks, false),
		insecure: newHTTPClient(cfg.BlockPrivateNetworks, true),
	}
}

func newHTTPClient(blockPrivate, insecureTLS bool) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	client := &http.Client{Transport: transport}

	if blockPrivate {
		transport.DialContext = safeDialContext
		client.CheckRedirect = safeCheckRedirect
	}
	if insecureTLS {
		// Several municipal sites serve expired or self-signed certificates.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*FetchedDocument, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := f.wait(ctx, rawURL, opts.RateLimitRPS); err != nil {
		return nil, NewFetchError(rawURL, 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, NewFetchError(rawURL, 0, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf,application/vnd.openxmlformats-officedocument.wordprocessingml.document,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-ZA,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	client := f.strict
	if opts.InsecureTLS {
		client = f.insecure
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, NewFetchError(rawURL, 0, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewFetchError(rawURL, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, NewFetchError(rawURL, 0, fmt.Errorf("failed to read body: %w", err))
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, NewFetchError(rawURL, 0, errBodyTooLarge)
	}

	return &FetchedDocument{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now(),
		Headers:     resp.Header,
	}, nil
}

// wait paces requests per host. rps overrides the fetcher default.
func (f *HTTPFetcher) wait(ctx context.Context, rawURL string, rps float64) error {
	if rps <= 0 {
		rps = f.cfg.RateLimitRPS
	}
	return f.limiters.wait(ctx, rawURL, rps)
}

// hostLimiters hands out one token bucket per host, shared by every request
// a fetcher makes, so concurrent fetches to a host are paced together.
type hostLimiters struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}

func (h *hostLimiters) get(rawURL string, rps float64) *rate.Limiter {
	host := extractDomain(rawURL)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m == nil {
		h.m = make(map[string]*rate.Limiter)
	}
	limiter, ok := h.m[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
		h.m[host] = limiter
	}
	return limiter
}

func (h *hostLimiters) wait(ctx context.Context, rawURL string, rps float64) error {
	if rps <= 0 {
		return nil
	}
	return h.get(rawURL, rps).Wait(ctx)
}

// safeDialContext wraps the default dialer to block private IPs
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("host %s resolved to no addresses", host)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
	}

	// Dial the vetted address rather than re-resolving the name.
	return d.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
}

// isPrivateIP checks if an IP is in a private range or loopback/link-local
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	addr, ok := netip.AddrFromSlice(ip)
	if ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

// safeCheckRedirect limits redirects and validates destinations
func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}

	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("redirect to private IP blocked: %s", ip)
	}
	return nil
}
