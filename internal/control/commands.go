package control

import (
	"fmt"
	"log"

	"github.com/sweeney/hive-heater/internal/event"
	"github.com/sweeney/hive-heater/internal/program"
	"github.com/sweeney/hive-heater/internal/state"
)

// StartProgram selects a catalog program by name or index and starts it.
// The system must be Ready.
func (c *Controller) StartProgram(key string) error {
	p, err := c.catalog.Lookup(key)
	if err != nil {
		return err
	}
	if cur := c.machine.Get(); cur != state.Ready {
		return fmt.Errorf("start %q in state %s: %w", p.Name, cur, ErrNotReady)
	}

	p.Running = true
	p.PreHeat = p.DurationPreHeat > 0
	c.active = p
	c.paused = false
	c.elapsed = 0

	if p.PreHeat {
		c.machine.Set(state.PreHeat)
	} else {
		c.machine.Set(state.Running)
	}
	log.Printf("control: program %q started (pre-heat=%v)", p.Name, p.PreHeat)
	c.bus.Publish(event.ForProgram(event.ProgramStart, c.active))
	c.refreshTelemetry()
	return nil
}

// StopProgram ends the running program and returns the system to Ready.
func (c *Controller) StopProgram() error {
	if !c.active.Running {
		return ErrNoProgram
	}
	c.active.Running = false
	c.active.PreHeat = false
	c.paused = false
	log.Printf("control: program %q stopped", c.active.Name)
	c.bus.Publish(event.ForProgram(event.ProgramStop, c.active))

	// Pre-heat has no direct edge back to Ready.
	if c.machine.Get() == state.PreHeat {
		c.machine.Set(state.Running)
	}
	if c.machine.Get() == state.Running {
		c.machine.Set(state.Ready)
	}
	c.refreshTelemetry()
	return nil
}

// PauseProgram holds the plates off and freezes program time.
func (c *Controller) PauseProgram() error {
	if !c.active.Running {
		return ErrNoProgram
	}
	if c.paused {
		return ErrPaused
	}
	c.paused = true
	log.Printf("control: program %q paused", c.active.Name)
	c.bus.Publish(event.ForProgram(event.ProgramPause, c.active))
	c.refreshTelemetry()
	return nil
}

// ResumeProgram continues a paused program.
func (c *Controller) ResumeProgram() error {
	if !c.active.Running {
		return ErrNoProgram
	}
	if !c.paused {
		return ErrNotPaused
	}
	c.paused = false
	log.Printf("control: program %q resumed", c.active.Name)
	c.bus.Publish(event.ForProgram(event.ProgramResume, c.active))
	c.refreshTelemetry()
	return nil
}

// UpdateProgram changes one tunable of the running program and republishes
// the complete bundle.
func (c *Controller) UpdateProgram(field, value string) error {
	if !c.active.Running {
		return ErrNoProgram
	}
	next, err := c.active.Set(field, value)
	if err != nil {
		return err
	}
	c.active = next
	log.Printf("control: program %q %s=%s", c.active.Name, field, value)
	c.bus.Publish(event.ForProgram(event.ProgramUpdate, c.active))
	return nil
}

// SetParam changes one configuration parameter in memory. SaveConfig
// persists it.
func (c *Controller) SetParam(field, value string) error {
	plates := c.store.Params.NumberOfPlates
	if err := c.store.Params.Set(field, value); err != nil {
		return err
	}
	log.Printf("control: param %s=%s", field, value)
	c.reconfigure()
	if c.store.Params.NumberOfPlates != plates {
		log.Printf("control: plate count change takes effect after restart")
	}
	return nil
}

// Param returns one configuration parameter as text.
func (c *Controller) Param(field string) (string, error) {
	return c.store.Params.Get(field)
}

// SaveConfig writes the configuration to storage.
func (c *Controller) SaveConfig() error {
	return c.store.Save()
}

// ResetConfig restores factory defaults in memory.
func (c *Controller) ResetConfig() {
	c.store.Reset()
	c.reconfigure()
}

// LoadConfig re-reads the configuration from storage. On failure the
// in-memory configuration is left as it was.
func (c *Controller) LoadConfig() error {
	if err := c.store.Load(); err != nil {
		return err
	}
	c.reconfigure()
	return nil
}

// Shutdown requests the Shutdown state.
func (c *Controller) Shutdown() state.State {
	s := c.machine.Set(state.Shutdown)
	c.refreshTelemetry()
	return s
}

// reconfigure pushes changed limits into the live plates and budget. With
// no program running the stored gains are also applied to the live loops;
// a running program keeps its own gains.
func (c *Controller) reconfigure() {
	params := &c.store.Params
	c.budget.SetCap(int(params.MaxConcurrentHeaters))
	shedExcess(c.budget, c.plates)
	for _, p := range c.plates {
		p.reconfigure()
	}
	if !c.active.Running {
		plate := program.Gains{Kp: float64(params.PlateKp), Ki: float64(params.PlateKi), Kd: float64(params.PlateKd)}
		hive := program.Gains{Kp: float64(params.HiveKp), Ki: float64(params.HiveKi), Kd: float64(params.HiveKd)}
		for _, p := range c.plates {
			if err := p.SetPIDTuning(plate); err != nil {
				log.Printf("control: %v", err)
			}
		}
		for _, z := range c.zones {
			if err := z.setTuning(hive); err != nil {
				log.Printf("control: %v", err)
			}
		}
	}
	c.refreshTelemetry()
}

// Programs returns the catalog entries.
func (c *Controller) Programs() []program.Program {
	return c.catalog.Programs()
}
