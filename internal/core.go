// Package internal wires the master together.
package internal

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	echoprom "github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/determined-ai/devicegate/internal/admission"
	"github.com/determined-ai/devicegate/internal/api"
	"github.com/determined-ai/devicegate/internal/cluster"
	"github.com/determined-ai/devicegate/internal/config"
	"github.com/determined-ai/devicegate/internal/project"
	"github.com/determined-ai/devicegate/internal/queue"
	"github.com/determined-ai/devicegate/internal/resolver"
	"github.com/determined-ai/devicegate/pkg/device"
	"github.com/determined-ai/devicegate/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// httpMetrics records request counts and latencies of the API. The collectors are
// registered once per process.
var httpMetrics = echoprom.NewPrometheus("devicegate_http", nil)

// defaultNode is registered when the configuration names no nodes.
var defaultNode = cluster.NodeSpec{Name: "local", Executors: 1, Enabled: true}

// Master manages the devicegate master.
type Master struct {
	version string
	config  *config.Config
	clock   clockwork.Clock

	devices  device.Registry
	resolver *resolver.Resolver
	projects *project.Registry
	queue    *queue.Queue
	cluster  *cluster.Cluster
	gate     *admission.Controller
	echo     *echo.Echo
}

// New creates an instance of the master from a resolved and validated configuration.
func New(version string, logStore *logger.LogBuffer, cfg *config.Config) (*Master, error) {
	return newMaster(version, logStore, cfg, clockwork.NewRealClock())
}

func newMaster(
	version string, logStore *logger.LogBuffer, cfg *config.Config, clock clockwork.Clock,
) (*Master, error) {
	m := &Master{
		version:  version,
		config:   cfg,
		clock:    clock,
		devices:  device.NewRegistry(cfg.Devices),
		resolver: resolver.New(),
		projects: project.NewRegistry(cfg.Jobs),
	}

	messages, err := admission.NewMessages(cfg.Admission.MessageTemplate, m.devices)
	if err != nil {
		return nil, errors.Wrap(err, "invalid admission message template")
	}

	nodes := make([]cluster.NodeSpec, 0, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		nodes = append(nodes, cluster.NodeSpec{
			Name:      n.Name,
			Executors: n.Executors,
			Enabled:   n.IsEnabled(),
		})
	}
	if len(nodes) == 0 {
		log.Infof("no nodes configured, using a single executor on %q", defaultNode.Name)
		nodes = append(nodes, defaultNode)
	}

	launcher := &cluster.SimulatedLauncher{Clock: clock, Duration: m.projects.Duration}
	m.cluster = cluster.New(clock, launcher, nodes)
	m.queue = queue.New(clock)
	m.gate = admission.New(m.resolver, m.queue, m.cluster, messages)
	m.queue.AddDispatcher(m.gate)
	m.cluster.OnRelease(m.queue.Trigger)

	m.echo = echo.New()
	m.echo.Use(middleware.Recover())
	m.echo.Use(httpMetrics.HandlerFunc)
	m.echo.Logger = logger.NewEchoLogger()
	m.echo.HideBanner = true
	m.echo.HidePort = true
	api.NewHandler(
		api.Info{Version: version, ClusterName: cfg.ClusterName},
		m.projects, m.queue, m.cluster, m.resolver, m.devices, logStore,
	).Register(m.echo)

	return m, nil
}

// Run starts the master and blocks until ctx is cancelled or a component fails.
func (m *Master) Run(ctx context.Context) error {
	log.Infof("devicegate master %s starting", m.version)
	for _, w := range m.config.Warnings() {
		log.Warn(w)
	}

	m.queue.Start()
	defer m.queue.Close()
	m.cluster.Start(ctx)
	defer m.cluster.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", m.config.Port)
		log.Infof("accepting incoming connections on %s", addr)
		if err := m.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to run HTTP server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return m.echo.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		m.maintain(gctx)
		return nil
	})
	return g.Wait()
}

// maintain runs queue maintenance every maintenance interval and whenever the queue or
// the cluster asks for it.
func (m *Master) maintain(ctx context.Context) {
	ticker := m.clock.NewTicker(time.Duration(m.config.MaintenanceInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		case <-m.queue.Triggers():
		}
		if n := m.queue.Maintain(m.cluster); n > 0 {
			log.Debugf("started %d items", n)
		}
	}
}
