// Package healthcheck probes the stores the gateway depends on.
package healthcheck

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Probe reports whether a dependency is reachable
type Probe func(ctx context.Context) error

// Performs health checks on named dependencies (redis, database)
type Checker struct {
	mu           sync.RWMutex
	probes       map[string]Probe
	names        []string
	healthStatus map[string]*Status
	interval     time.Duration
	timeout      time.Duration
	maxFailures  int
	onChange     func(name string, healthy bool)
	log          *zap.Logger
	stopChan     chan struct{}
	running      bool
	now          func() time.Time
}

// Holds health checker configuration
type Config struct {
	Probes      map[string]Probe
	Interval    time.Duration // How often to check (default: 10s)
	Timeout     time.Duration // Per probe timeout (default: 2s)
	MaxFailures int           // Failures before marking unhealthy (default: 3)
	OnChange    func(name string, healthy bool)
	Log         *zap.Logger
}

func NewChecker(cfg *Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	checker := &Checker{
		probes:       make(map[string]Probe, len(cfg.Probes)),
		healthStatus: make(map[string]*Status, len(cfg.Probes)),
		interval:     cfg.Interval,
		timeout:      cfg.Timeout,
		maxFailures:  cfg.MaxFailures,
		onChange:     cfg.OnChange,
		log:          cfg.Log,
		stopChan:     make(chan struct{}),
		now:          time.Now,
	}

	// Initialize status for all probes
	for name, probe := range cfg.Probes {
		checker.probes[name] = probe
		checker.names = append(checker.names, name)
		checker.healthStatus[name] = &Status{
			Name:      name,
			IsHealthy: true, // Assume healthy initially
			LastCheck: checker.now(),
		}
	}

	return checker
}

// Begins periodic health checks
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.log.Info("starting dependency health checks",
		zap.Int("probes", len(c.names)),
		zap.Duration("interval", c.interval),
	)

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.CheckAll(context.Background())
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Stops the health checker
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
		c.log.Info("health checker stopped")
	}
}

// CheckAll runs every probe concurrently and returns the resulting overall health
func (c *Checker) CheckAll(ctx context.Context) HealthStatus {
	var wg sync.WaitGroup

	for _, name := range c.names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			c.check(ctx, n)
		}(name)
	}

	wg.Wait()
	return c.OverallHealth()
}

func (c *Checker) check(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.probes[name](ctx); err != nil {
		c.recordFailure(name, err)
		return
	}
	c.recordSuccess(name)
}

// Records a successful health check
func (c *Checker) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.healthStatus[name]
	status.LastCheck = c.now()
	status.LastSuccess = status.LastCheck
	status.LastError = ""
	status.FailureCount = 0

	if !status.IsHealthy {
		c.log.Info("dependency is healthy again", zap.String("dependency", name))
		status.IsHealthy = true
		c.notify(name, true)
	}
}

// Records a failed health check
func (c *Checker) recordFailure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.healthStatus[name]
	status.LastCheck = c.now()
	status.LastFailure = status.LastCheck
	status.LastError = err.Error()
	status.FailureCount++

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		c.log.Warn("dependency is unhealthy",
			zap.String("dependency", name),
			zap.Int("failures", status.FailureCount),
			zap.Error(err),
		)
		status.IsHealthy = false
		c.notify(name, false)
	}
}

func (c *Checker) notify(name string, healthy bool) {
	if c.onChange != nil {
		c.onChange(name, healthy)
	}
}

// Return the health status of a specific dependency
func (c *Checker) GetStatus(name string) *Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if status, exists := c.healthStatus[name]; exists {
		// Return copy
		statusCopy := *status
		return &statusCopy
	}

	return nil
}

// Returns health status of all dependencies
func (c *Checker) GetAllStatus() map[string]*Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statusMap := make(map[string]*Status)
	for name, status := range c.healthStatus {
		statusCopy := *status
		statusMap[name] = &statusCopy
	}

	return statusMap
}

// Returns the overall health status
func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	healthyCount := 0
	for _, status := range c.healthStatus {
		if status.IsHealthy {
			healthyCount++
		}
	}

	if len(c.healthStatus) > 0 && healthyCount == 0 {
		return Unhealthy
	}
	if healthyCount < len(c.healthStatus) {
		return Degraded
	}

	return Healthy
}
