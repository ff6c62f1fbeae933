package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/hive-heater/internal/hw"
	"github.com/sweeney/hive-heater/internal/state"
	"github.com/sweeney/hive-heater/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"deg": func(tenths int16) string {
		if tenths == hw.Unknown {
			return "--"
		}
		return fmt.Sprintf("%.1f °C", float64(tenths)/10)
	},
	"faulted": func(f state.Fault) bool {
		return f != "" && f != state.FaultNone
	},
	"minutes": func(d time.Duration) string {
		return fmt.Sprintf("%dm", int(d/time.Minute))
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Hive Heater</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.fault { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Hive Heater</h1>

<h2>State</h2>
<table>
<tr><th>State</th><td id="state" class="{{if eq .Control.State.String "error"}}fault{{else if .Control.ProgramRunning}}on{{else}}off{{end}}">{{.Control.State}}</td></tr>
<tr><th>Fault</th><td id="fault"{{if faulted .Control.Fault}} class="fault"{{end}}>{{if faulted .Control.Fault}}{{.Control.Fault}}{{else}}none{{end}}</td></tr>
<tr><th>Program</th><td id="program">{{if .Control.ProgramRunning}}{{.Control.Program}}{{if .Control.PreHeat}} (pre-heat){{end}}{{if .Control.Paused}} (paused){{end}}{{else}}none{{end}}</td></tr>
{{if .Control.ProgramRunning}}<tr><th>Elapsed</th><td>{{minutes .Control.Elapsed}}</td></tr>
<tr><th>Remaining</th><td>{{minutes .Control.Remaining}}</td></tr>{{end}}
<tr><th>Cycles</th><td>{{.Control.Cycles}}</td></tr>
</table>

<h2>Zones</h2>
<table>
<tr><th>Zone</th><td>Hive</td><td>Target</td><td>Plate ceiling</td></tr>
{{range .Control.Zones}}<tr><th>{{.Index}}{{if .High}} <span class="fault">high</span>{{end}}</th><td>{{deg .Temperature}}</td><td>{{deg .Target}}</td><td>{{deg .PlateCeiling}}</td></tr>
{{end}}</table>

<h2>Plates</h2>
<table>
<tr><th>Plate</th><td>Temperature</td><td>Target</td><td>Power</td><td>Fan</td></tr>
{{range .Control.Plates}}<tr><th>{{.Index}}</th><td{{if not .SensorOK}} class="fault"{{end}}>{{deg .Temperature}}</td><td>{{deg .Target}}</td><td class="{{if .Power}}on{{else}}off{{end}}">{{.Power}}</td><td>{{.FanSpeed}}</td></tr>
{{end}}</table>

<h2>Heaters and Humidity</h2>
<table>
<tr><th>Active heaters</th><td>{{.Control.ActiveHeaters}} / {{.Control.MaxHeaters}}{{if .Control.UsePWM}} (PWM){{end}}</td></tr>
<tr><th>Heater relay</th><td class="{{if .Control.HeaterRelay}}on{{else}}off{{end}}">{{if .Control.HeaterRelay}}on{{else}}off{{end}}</td></tr>
<tr><th>Humidity</th><td>{{.Control.Humidity}}%</td></tr>
<tr><th>Vaporizer</th><td>{{.Control.Vaporizer}}</td></tr>
<tr><th>Humidifier fan</th><td>{{.Control.HumidifierFan}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Period</th><td>{{.Config.PeriodMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>MCU</th><td>{{if .Config.Simulate}}simulated{{else}}{{.Config.SerialPort}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		fmt.Fprintf(w, "<!-- render: %v -->", err)
	}
}
