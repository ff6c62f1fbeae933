// Package console implements the operator command line: a line-oriented
// text protocol read from stdin (or any reader) and executed on the control
// goroutine between passes.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/sweeney/hive-heater/internal/config"
	"github.com/sweeney/hive-heater/internal/control"
	"github.com/sweeney/hive-heater/internal/program"
	"github.com/sweeney/hive-heater/internal/state"
	"github.com/sweeney/hive-heater/internal/status"
)

// ErrUsage is returned for a malformed or unknown command.
var ErrUsage = errors.New("usage")

// Operator is the command surface of the controller.
type Operator interface {
	Telemetry() control.Telemetry
	Programs() []program.Program
	Program() (program.Program, bool)
	StartProgram(key string) error
	StopProgram() error
	PauseProgram() error
	ResumeProgram() error
	UpdateProgram(field, value string) error
	SetParam(field, value string) error
	Param(field string) (string, error)
	SaveConfig() error
	ResetConfig()
	LoadConfig() error
	Shutdown() state.State
}

type command struct {
	args  string
	help  string
	nargs int
	run   func(op Operator, args []string, w io.Writer) error
}

var commands = map[string]command{
	"status":   {"", "show state, zones and plates", 0, printStatus},
	"programs": {"", "list the program catalog", 0, printPrograms},
	"start": {"<name|index>", "start a program (quote names with spaces)", 1, func(op Operator, a []string, w io.Writer) error {
		if err := op.StartProgram(a[0]); err != nil {
			return err
		}
		p, _ := op.Program()
		fmt.Fprintf(w, "started %s\n", p.Name)
		return nil
	}},
	"stop":   {"", "stop the running program", 0, simple(Operator.StopProgram, "stopped")},
	"pause":  {"", "hold the plates off", 0, simple(Operator.PauseProgram, "paused")},
	"resume": {"", "continue a paused program", 0, simple(Operator.ResumeProgram, "resumed")},
	"program": {"[<field> <value>]", "show or tune the running program", -1, func(op Operator, a []string, w io.Writer) error {
		switch len(a) {
		case 0:
			p, ok := op.Program()
			if !ok {
				return control.ErrNoProgram
			}
			printProgram(w, p)
			return nil
		case 2:
			if err := op.UpdateProgram(a[0], a[1]); err != nil {
				return err
			}
			fmt.Fprintf(w, "%s=%s\n", a[0], a[1])
			return nil
		}
		return fmt.Errorf("program [<field> <value>]: %w (fields: %s)", ErrUsage, strings.Join(program.FieldNames(), ", "))
	}},
	"set": {"<param> <value>", "change a configuration parameter", 2, func(op Operator, a []string, w io.Writer) error {
		if err := op.SetParam(a[0], a[1]); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s=%s (not saved)\n", a[0], a[1])
		return nil
	}},
	"get": {"[<param>]", "show configuration parameters", -1, func(op Operator, a []string, w io.Writer) error {
		names := a
		if len(names) == 0 {
			names = config.ParamNames()
		}
		for _, n := range names {
			v, err := op.Param(n)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s=%s\n", n, v)
		}
		return nil
	}},
	"save": {"", "write the configuration to storage", 0, simple(Operator.SaveConfig, "saved")},
	"load": {"", "re-read the configuration from storage", 0, simple(Operator.LoadConfig, "loaded")},
	"reset": {"", "restore factory configuration (not saved)", 0, func(op Operator, _ []string, w io.Writer) error {
		op.ResetConfig()
		fmt.Fprintln(w, "configuration reset")
		return nil
	}},
	"shutdown": {"", "stop heating for good", 0, func(op Operator, _ []string, w io.Writer) error {
		fmt.Fprintf(w, "state %s\n", op.Shutdown())
		return nil
	}},
}

func init() {
	commands["help"] = command{"", "list commands", 0, printHelp}
}

func printHelp(_ Operator, _ []string, w io.Writer) error {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		c := commands[n]
		fmt.Fprintf(w, "  %-28s %s\n", strings.TrimSpace(n+" "+c.args), c.help)
	}
	return nil
}

func simple(f func(Operator) error, done string) func(Operator, []string, io.Writer) error {
	return func(op Operator, _ []string, w io.Writer) error {
		if err := f(op); err != nil {
			return err
		}
		fmt.Fprintln(w, done)
		return nil
	}
}

// Execute runs one command line against op, writing its output to w. Blank
// lines and lines starting with # are ignored.
func Execute(op Operator, line string, w io.Writer) error {
	words, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}
	if len(words) == 0 || strings.HasPrefix(words[0], "#") {
		return nil
	}

	name, args := strings.ToLower(words[0]), words[1:]
	c, ok := commands[name]
	if !ok {
		return fmt.Errorf("%q: %w (try help)", name, ErrUsage)
	}
	if c.nargs >= 0 && len(args) != c.nargs {
		return fmt.Errorf("%s %s: %w", name, c.args, ErrUsage)
	}
	return c.run(op, args, w)
}

// Read sends each line of r to lines until r is exhausted or ctx is done.
// lines is closed on return.
func Read(ctx context.Context, r io.Reader, lines chan<- string) error {
	defer close(lines)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

func printStatus(op Operator, _ []string, w io.Writer) error {
	t := op.Telemetry()
	fmt.Fprintf(w, "state %s", t.State)
	if t.Fault != "" && t.Fault != state.FaultNone {
		fmt.Fprintf(w, " (fault %s)", t.Fault)
	}
	fmt.Fprintf(w, ", cycle %d\n", t.Cycles)
	if t.ProgramRunning {
		phase := "running"
		switch {
		case t.Paused:
			phase = "paused"
		case t.PreHeat:
			phase = "pre-heat"
		}
		fmt.Fprintf(w, "program %s %s, elapsed %v, remaining %v\n",
			t.Program, phase, t.Elapsed.Truncate(time.Second), t.Remaining.Truncate(time.Second))
	}
	for _, z := range t.Zones {
		fmt.Fprintf(w, "zone %d  %s / %s  plates <= %s (cap %s)\n",
			z.Index, deg(z.Temperature), deg(z.Target), deg(z.PlateCeiling), deg(z.PlateCap))
	}
	for _, p := range t.Plates {
		fmt.Fprintf(w, "plate %d %s / %s  duty %3d  fan %3d\n",
			p.Index, deg(p.Temperature), deg(p.Target), p.Power, p.FanSpeed)
	}
	fmt.Fprintf(w, "heaters %d/%d relay %v  humidity %d%% vaporizer %s\n",
		t.ActiveHeaters, t.MaxHeaters, t.HeaterRelay, t.Humidity, t.Vaporizer)
	return nil
}

func printPrograms(op Operator, _ []string, w io.Writer) error {
	for i, p := range op.Programs() {
		fmt.Fprintf(w, "%d  %-14s hive %s plate %s  %d+%d min\n",
			i, p.Name, deg(p.TemperatureHive), deg(p.TemperaturePlate), p.DurationPreHeat, p.Duration)
	}
	return nil
}

func printProgram(w io.Writer, p program.Program) {
	fmt.Fprintf(w, "%s\n", p.Name)
	fmt.Fprintf(w, "  pre-heat   %s for %d min, fan %d\n", deg(p.TemperaturePreHeat), p.DurationPreHeat, p.FanSpeedPreHeat)
	fmt.Fprintf(w, "  hive       %s  kp=%g ki=%g kd=%g\n", deg(p.TemperatureHive), p.HiveGains.Kp, p.HiveGains.Ki, p.HiveGains.Kd)
	fmt.Fprintf(w, "  plate      %s  kp=%g ki=%g kd=%g\n", deg(p.TemperaturePlate), p.PlateGains.Kp, p.PlateGains.Ki, p.PlateGains.Kd)
	fmt.Fprintf(w, "  fan        %d\n", p.FanSpeed)
	fmt.Fprintf(w, "  humidity   %d-%d%%, fan %d\n", p.HumidityMin, p.HumidityMax, p.FanSpeedHumidifier)
	fmt.Fprintf(w, "  duration   %d min\n", p.Duration)
}

func deg(tenths int16) string {
	v := status.Degrees(tenths)
	if v == nil {
		return "  --.-"
	}
	return fmt.Sprintf("%5.1f", *v)
}
