// Package dependency wires core cansim services using go.uber.org/dig.
package dependency

import (
	"go.uber.org/dig"

	"github.com/cansim/cansim/internal/bus"
	"github.com/cansim/cansim/internal/config"
	"github.com/cansim/cansim/internal/cyclic"
	"github.com/cansim/cansim/internal/monitor"
	"github.com/cansim/cansim/internal/scenario"
	"github.com/cansim/cansim/internal/trace"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg *config.Config
	bus *bus.Bus
	rec *trace.Recorder
	hub *monitor.Hub
}

func (c *Container) Config() *config.Config    { return c.cfg }
func (c *Container) Bus() *bus.Bus             { return c.bus }
func (c *Container) Recorder() *trace.Recorder { return c.rec }
func (c *Container) Hub() *monitor.Hub         { return c.hub }

// NewRunner binds scn to the container's bus and recorder.
func (c *Container) NewRunner(scn *scenario.Scenario) *scenario.Runner {
	return scenario.NewRunner(scn, c.bus, c.rec)
}

// NewScheduler creates a cyclic scheduler on the container's bus.
func (c *Container) NewScheduler() *cyclic.Scheduler {
	return cyclic.NewScheduler(c.bus)
}

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(newBus); err != nil {
		return nil, err
	}
	if err := d.Provide(monitor.NewHub); err != nil {
		return nil, err
	}
	if err := d.Provide(newRecorder); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		cfg *config.Config,
		b *bus.Bus,
		rec *trace.Recorder,
		hub *monitor.Hub,
	) {
		result = &Container{
			cfg: cfg,
			bus: b,
			rec: rec,
			hub: hub,
		}
	})
	return result, err
}

func newBus() *bus.Bus {
	return bus.New()
}

// newRecorder subscribes the hub up front; publishing to a hub with no
// clients is a no-op, so commands that never serve the monitor pay nothing.
func newRecorder(cfg *config.Config, hub *monitor.Hub) *trace.Recorder {
	rec := trace.NewRecorder(cfg.BusName)
	rec.Subscribe(hub)
	return rec
}
