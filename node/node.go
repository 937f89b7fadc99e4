// Package node is the composition root: it loads configuration, opens
// kernel bundles, builds every service and drives their lifecycle
// through a shared registry.
package node

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/siderealabs/ephemerisd/api"
	"github.com/siderealabs/ephemerisd/cache"
	"github.com/siderealabs/ephemerisd/chrono"
	"github.com/siderealabs/ephemerisd/config"
	"github.com/siderealabs/ephemerisd/ephemeris/ayanamsha"
	"github.com/siderealabs/ephemerisd/ephemeris/kernel"
	"github.com/siderealabs/ephemerisd/ephemeris/pool"
	"github.com/siderealabs/ephemerisd/monitoring/prometheus"
	"github.com/siderealabs/ephemerisd/ratelimit"
	"github.com/siderealabs/ephemerisd/runtime"
)

var log = logrus.WithField("prefix", "node")

// Node is the running ephemeris service process.
type Node struct {
	cfg      *config.Config
	services *runtime.ServiceRegistry
	bundles  []*kernel.Bundle

	lock sync.RWMutex
	stop chan struct{}
}

// New builds a fully wired node from the cli context.
func New(cliCtx *cli.Context) (*Node, error) {
	cfg, err := config.Load(cliCtx.String("config"))
	if err != nil {
		return nil, err
	}
	// An explicit --verbosity flag wins over the config file's log_level.
	if !cliCtx.IsSet("verbosity") {
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			logrus.SetLevel(level)
		}
	}

	n := &Node{
		cfg:      cfg,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	bundles, pools, err := n.openBundles()
	if err != nil {
		return nil, err
	}
	n.bundles = bundles

	registry, err := ayanamsha.LoadRegistry(cfg.AyanamshaRegistry)
	if err != nil {
		return nil, err
	}

	var patches []chrono.Patch
	if cfg.TimePatches != "" {
		if patches, err = chrono.LoadPatches(cfg.TimePatches); err != nil {
			return nil, err
		}
	}
	resolver, err := chrono.NewResolver(patches)
	if err != nil {
		return nil, err
	}

	responseCache, err := cache.New(cache.Config{
		L1Size: cfg.CacheSize,
		TTL:    time.Duration(cfg.CacheTTLSec) * time.Second,
		Redis:  redisClient(cfg.RedisURL),
	})
	if err != nil {
		return nil, err
	}

	limiter, err := n.buildLimiter()
	if err != nil {
		return nil, err
	}
	if err := n.services.RegisterService(limiter); err != nil {
		return nil, err
	}

	apiService := api.NewService(&api.Config{
		Host:           cfg.HTTPHost,
		Port:           cfg.HTTPPort,
		Bundles:        bundles,
		Pools:          pools,
		Ayanamshas:     registry,
		Resolver:       resolver,
		Cache:          responseCache,
		Limiter:        limiter,
		Registry:       n.services,
		GeocoderURL:    cfg.GeocoderURL,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	if err := n.services.RegisterService(apiService); err != nil {
		return nil, err
	}

	monitoring := prometheus.NewService(
		fmt.Sprintf("%s:%d", cfg.MonitoringHost, cfg.MonitoringPort), n.services)
	if err := n.services.RegisterService(monitoring); err != nil {
		return nil, err
	}

	return n, nil
}

// openBundles verifies every configured bundle and builds one compute
// pool per bundle. Bundle order is preserved: epoch selection tries the
// primary before the long-span fallback.
func (n *Node) openBundles() ([]*kernel.Bundle, map[string]*pool.Pool, error) {
	if len(n.cfg.Bundles) == 0 {
		return nil, nil, errors.New("no kernel bundles configured")
	}
	bundles := make([]*kernel.Bundle, 0, len(n.cfg.Bundles))
	pools := make(map[string]*pool.Pool, len(n.cfg.Bundles))
	for _, ref := range n.cfg.Bundles {
		b, err := kernel.Open(ref.Manifest)
		if err != nil {
			return nil, nil, err
		}
		bundles = append(bundles, b)
		p := pool.New(pool.Config{
			ManifestPath: ref.Manifest,
			BundleID:     b.ID(),
			Workers:      n.cfg.Workers,
			QueueSize:    n.cfg.QueueSize,
			JobTimeout:   time.Duration(n.cfg.JobTimeoutSec) * time.Second,
		})
		pools[b.ID()] = p
	}
	// The registry keys services by concrete type, so the per-bundle pools
	// are registered behind one aggregate.
	if err := n.services.RegisterService(&poolSet{pools: pools}); err != nil {
		return nil, nil, err
	}
	return bundles, pools, nil
}

// poolSet drives every per-bundle compute pool as one registered service.
type poolSet struct {
	pools map[string]*pool.Pool
}

func (ps *poolSet) Start() {
	for _, p := range ps.pools {
		p.Start()
	}
}

func (ps *poolSet) Stop() error {
	var firstErr error
	for _, p := range ps.pools {
		if err := p.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status fails when any bundle's pool is unhealthy: a dead fallback pool
// is as much an outage as a dead primary for the epochs it serves.
func (ps *poolSet) Status() error {
	for _, p := range ps.pools {
		if err := p.Status(); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) buildLimiter() (*ratelimit.Limiter, error) {
	var rules []ratelimit.Rule
	if n.cfg.RateLimitRules != "" {
		var err error
		if rules, err = ratelimit.LoadRules(n.cfg.RateLimitRules); err != nil {
			return nil, err
		}
	}
	uri := n.cfg.RateLimitStorageURI
	if uri == "" {
		uri = n.cfg.RedisURL
	}
	return ratelimit.New(ratelimit.Config{
		Rules:    rules,
		Redis:    redisClient(uri),
		Disabled: n.cfg.DisableRateLimit,
	}), nil
}

// redisClient builds a client from a redis:// URI, or nil when the URI is
// empty or malformed. A bad URI is logged, not fatal: every redis-backed
// concern degrades gracefully without it.
func redisClient(uri string) redis.UniversalClient {
	if uri == "" {
		return nil
	}
	opt, err := redis.ParseURL(uri)
	if err != nil {
		log.WithError(err).Warn("Ignoring malformed redis URI")
		return nil
	}
	return redis.NewClient(opt)
}

// Start launches every registered service and blocks until the node is
// closed. Repeated interrupts escalate to a panic so a wedged shutdown
// can still be escaped.
func (n *Node) Start() {
	n.lock.Lock()
	log.Info("Starting ephemeris node")
	n.services.StartAll()
	stop := n.stop
	n.lock.Unlock()

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the ephemeris node")
	}()

	<-stop
}

// Close stops all services in reverse order and releases the kernel
// bundles.
func (n *Node) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping ephemeris node")
	n.services.StopAll()
	for _, b := range n.bundles {
		b.Release()
	}
	close(n.stop)
}
