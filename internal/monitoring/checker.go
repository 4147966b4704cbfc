package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
)

// collectFailEscalation is the consecutive-failure count that turns collect
// warnings into an error log. One miss is a store hiccup; a streak means
// serve mode is flying blind.
const collectFailEscalation = 3

// Checker sweeps run health on a timer while serve mode is up, pushing
// alerts through the Alerter whenever a threshold is breached.
type Checker struct {
	collector  *Collector
	alerter    *Alerter
	cfg        config.MonitoringConfig
	log        *zap.Logger
	failStreak int
}

// NewChecker creates a background health checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "monitoring")),
	}
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs > 0 {
		return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	}
	return 5 * time.Minute
}

// Run blocks until ctx is cancelled. The first sweep happens up front, so a
// freshly started server reports on the backlog instead of idling through
// the first interval.
func (c *Checker) Run(ctx context.Context) {
	interval := c.interval()
	c.log.Info("starting health checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep collects one snapshot, evaluates it, and delivers whatever fired,
// returning the triggered and delivered counts.
func (c *Checker) sweep(ctx context.Context) (triggered, sent int) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.failStreak++
		if c.failStreak >= collectFailEscalation {
			c.log.Error("monitoring: metrics unavailable",
				zap.Int("consecutive_failures", c.failStreak), zap.Error(err))
		} else {
			c.log.Warn("monitoring: collect failed", zap.Error(err))
		}
		return 0, 0
	}
	c.failStreak = 0

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		c.log.Debug("monitoring: all thresholds clear")
		return 0, 0
	}

	sent = c.alerter.SendAlerts(ctx, alerts)
	c.log.Info("monitoring: sweep delivered alerts",
		zap.Int("triggered", len(alerts)),
		zap.Int("sent", sent),
	)
	return len(alerts), sent
}
