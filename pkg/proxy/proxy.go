// Package proxy implements the request pipeline: the state machine that
// takes a request through health/forbidden short-circuits, tenant
// identification, routing, rate limiting, the static overlay, cache
// lookup/fill, and observability emission.
package proxy

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"blockfrost-proxy/pkg/auditlog"
	"blockfrost-proxy/pkg/cache"
	"blockfrost-proxy/pkg/config"
	"blockfrost-proxy/pkg/logging"
	"blockfrost-proxy/pkg/pattern"
	"blockfrost-proxy/pkg/ratelimit"
	"blockfrost-proxy/pkg/rules"
	"blockfrost-proxy/pkg/staticoverlay"
	"blockfrost-proxy/pkg/telemetry"
	"blockfrost-proxy/pkg/tenant"
	"blockfrost-proxy/pkg/tier"
)

// healthPath is the fixed liveness route; its request is exempt from rate
// limiting and from both metrics collectors.
const healthPath = "/dmtr_health"

// Pipeline wires every dynamic-state container, subsystem, and upstream
// client into a single http.Handler implementing the request state machine.
type Pipeline struct {
	cfg *config.Config

	roster    *tenant.Roster
	tiers     *tier.Table
	ruleList  *rules.List
	forbidden *pattern.List
	dolos     *pattern.List

	limiter  *ratelimit.Manager
	store    *cache.Cache
	metrics  *telemetry.Metrics
	overlay  *staticoverlay.Document
	auditLog *auditlog.Log
	logger   *logging.Logger

	forwarder *forwarder
}

// Config bundles the dynamic-state containers and subsystems a Pipeline
// needs; everything here is built and owned by cmd/blockfrost-proxy/main.go.
type Config struct {
	Static    *config.Config
	Roster    *tenant.Roster
	Tiers     *tier.Table
	Rules     *rules.List
	Forbidden *pattern.List
	Dolos     *pattern.List
	Limiter   *ratelimit.Manager
	Cache     *cache.Cache
	Metrics   *telemetry.Metrics
	Overlay   *staticoverlay.Document
	AuditLog  *auditlog.Log
	Logger    *logging.Logger

	// Transport overrides the upstream HTTP client's transport; nil uses
	// http.DefaultTransport. Tests use this to redirect the synthetic
	// DNS-style authorities the router builds to a local test server.
	Transport http.RoundTripper
}

// New builds a Pipeline from its wired dependencies.
func New(c Config) *Pipeline {
	logger := c.Logger
	if logger == nil {
		logger = logging.Global()
	}
	return &Pipeline{
		cfg:       c.Static,
		roster:    c.Roster,
		tiers:     c.Tiers,
		ruleList:  c.Rules,
		forbidden: c.Forbidden,
		dolos:     c.Dolos,
		limiter:   c.Limiter,
		store:     c.Cache,
		metrics:   c.Metrics,
		overlay:   c.Overlay,
		auditLog:  c.AuditLog,
		logger:    logger,
		forwarder: newForwarder(c.Transport),
	}
}

// ServeHTTP implements the full request pipeline described by the phase
// contracts: health -> forbidden -> identify -> route -> limit -> overlay ->
// cache-rule match -> cache lookup/fill -> log.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.URL.Path

	if path == healthPath {
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}

	if p.forbidden.Match(path) {
		w.WriteHeader(http.StatusNotImplemented)
		p.observe(r, tenant.Tenant{}, "", "", "", http.StatusNotImplemented, false, start)
		return
	}

	credential, network := extractKeyAndNetwork(r)
	t, ok := p.roster.Lookup(network + "." + credential)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		p.observe(r, tenant.Tenant{}, network, "", "", http.StatusUnauthorized, false, start)
		return
	}

	resolvedBy, authority := route(p.cfg, p.dolos, path, network)

	if p.limiter.Allow(t.Key, t.Tier) != ratelimit.Admit {
		w.WriteHeader(http.StatusTooManyRequests)
		p.observe(r, t, network, authority, resolvedBy, http.StatusTooManyRequests, false, start)
		return
	}

	if path == staticoverlay.EpochParametersPath {
		p.overlay.ServeHTTP(w)
		p.observe(r, t, network, authority, resolvedBy, http.StatusOK, false, start)
		return
	}

	rule, hasRule := p.ruleList.Match(path)

	status := p.routeToUpstreamOrCache(w, r, t, authority, network, rule, hasRule, resolvedBy)

	p.observe(r, t, network, authority, resolvedBy, status, hasRule, start)
}

func (p *Pipeline) routeToUpstreamOrCache(w http.ResponseWriter, r *http.Request, t tenant.Tenant, authority, network string, rule rules.Rule, hasRule bool, resolvedBy string) int {
	if !hasRule {
		return p.proxyWithoutCache(w, r, authority)
	}

	key := cache.Key(network, r.URL.Path, r.URL.RawQuery)
	if meta, timing, hit, ok := p.store.Lookup(key); ok && !timing.Expired(time.Now()) {
		p.metrics.ObserveCacheHit(r.URL.Path, network, t.Namespace, resolvedBy)
		writeHeaders(w, meta.Header)
		w.WriteHeader(meta.StatusCode)
		_, _ = w.Write(hit.ReadBody())
		return meta.StatusCode
	}

	p.metrics.ObserveCacheMiss(r.URL.Path, network, t.Namespace, resolvedBy)
	return p.proxyWithCacheFill(w, r, authority, key, rule)
}

func (p *Pipeline) proxyWithoutCache(w http.ResponseWriter, r *http.Request, authority string) int {
	resp, err := p.forwarder.forward(r, authority)
	if err != nil {
		p.logger.Error("upstream request failed", "authority", authority, "error", err)
		w.WriteHeader(http.StatusBadGateway)
		return http.StatusBadGateway
	}
	defer resp.Body.Close()

	writeHeaders(w, resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
	return resp.StatusCode
}

func (p *Pipeline) proxyWithCacheFill(w http.ResponseWriter, r *http.Request, authority, key string, rule rules.Rule) int {
	resp, err := p.forwarder.forward(r, authority)
	if err != nil {
		p.logger.Error("upstream request failed", "authority", authority, "error", err)
		w.WriteHeader(http.StatusBadGateway)
		return http.StatusBadGateway
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Error("reading upstream response body failed", "error", err)
		w.WriteHeader(http.StatusBadGateway)
		return http.StatusBadGateway
	}

	writeHeaders(w, resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)

	p.admitToCache(key, resp.StatusCode, resp.Header, body, rule)
	return resp.StatusCode
}

// admitToCache builds cache meta per phase 11 and commits it. Write/commit
// failures are logged, not surfaced, since the response has already been
// served from the upstream.
func (p *Pipeline) admitToCache(key string, statusCode int, header http.Header, body []byte, rule rules.Rule) {
	ttl := rule.TTL
	if statusCode != http.StatusOK {
		ttl = time.Duration(p.cfg.CacheFailedRequestsSecs) * time.Second
	}
	now := time.Now()
	meta := cache.Meta{StatusCode: statusCode, Header: header.Clone()}
	timing := cache.Timing{StoredAt: now, ExpiresAt: now.Add(ttl)}

	wh := p.store.NewWriteHandle(key, meta, timing)
	if err := wh.WriteBody(body, true); err != nil {
		p.logger.Error("cache write failed", "error", err)
		return
	}
	if _, err := wh.Finish(); err != nil {
		p.logger.Error("cache commit failed", "error", err)
	}
}

func (p *Pipeline) observe(r *http.Request, t tenant.Tenant, network, authority, resolvedBy string, statusCode int, cached bool, start time.Time) {
	statusLabel := strconv.Itoa(statusCode)
	p.metrics.ObserveRequest(t.Key, p.cfg.ProxyNamespace, authority, statusLabel, network, t.Tier,
		strconv.FormatBool(cached), resolvedBy, time.Since(start))

	if p.auditLog != nil {
		p.auditLog.Append(auditlog.Record{
			Timestamp:   start,
			Namespace:   t.Namespace,
			Port:        t.Port,
			Tier:        t.Tier,
			Network:     network,
			Method:      r.Method,
			Path:        r.URL.Path,
			StatusCode:  statusCode,
			DurationMs:  time.Since(start).Milliseconds(),
			CacheStatus: cacheStatusLabel(cached),
			Upstream:    authority,
		})
	}
}

func cacheStatusLabel(cached bool) string {
	if cached {
		return "cached"
	}
	return "bypass"
}

func writeHeaders(w http.ResponseWriter, header http.Header) {
	for k, values := range header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
}
