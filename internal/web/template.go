package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/button-sensor/internal/status"
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
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
	"reading": func(value float64, unit string) string {
		return fmt.Sprintf("%.1f %s", value, unit)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Button Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
#log { font-size: 0.9em; color: #444; }
</style>
</head>
<body>
<h1>Button Sensor<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Controller</h2>
<table>
<tr><th>Session</th><td id="session">{{.Controller.Session}}</td></tr>
<tr><th>LED</th><td id="led" class="{{if .Controller.LED}}on{{else}}off{{end}}">{{onOff .Controller.LED}}</td></tr>
<tr><th>Counter</th><td id="counter">{{.Controller.Counter}}</td></tr>
{{range $i, $ch := .Controller.Channels}}<tr><th>Channel {{$i}}</th><td>{{$ch.Phase}}{{if $ch.Armed}} @ {{$ch.Target}}{{end}}</td></tr>
{{end}}{{if .Controller.BlinkCount}}<tr><th>Blinking</th><td>{{.Controller.BlinkCount}} cycles</td></tr>{{end}}
{{if .Controller.PendingBlinks}}<tr><th>Pending blink</th><td>{{.Controller.PendingBlinks}} cycles</td></tr>{{end}}
{{if .LastEvent.Type}}<tr><th>Last event</th><td id="last-event">{{.LastEvent.Type}} at {{.LastEvent.Timestamp.UTC.Format "15:04:05"}}</td></tr>{{end}}
</table>

<form method="post" action="/blink?count=3"><button type="submit">Blink 3x</button></form>

<h2>Samples</h2>
<table>
<tr><th>Temperature</th><td id="temperature">{{if .Temperature.Time.IsZero}}-{{else if .Temperature.Err}}error{{else}}{{reading .Temperature.Value .Temperature.Unit}}{{end}}</td></tr>
<tr><th>Analog</th><td id="analog">{{if .Analog.Time.IsZero}}-{{else if .Analog.Err}}error{{else}}{{reading .Analog.Value .Analog.Unit}}{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Presses</th><td>{{.Controller.Counts.Presses}}</td></tr>
<tr><th>Bounces</th><td>{{.Controller.Counts.Bounces}}</td></tr>
<tr><th>Short presses</th><td>{{.Controller.Counts.ShortPresses}}</td></tr>
<tr><th>Long presses</th><td>{{.Controller.Counts.LongPresses}}</td></tr>
<tr><th>Probes</th><td>{{.Controller.Counts.Probes}}</td></tr>
<tr><th>Blinks</th><td>{{.Controller.Counts.BlinksDone}}/{{.Controller.Counts.Blinks}}</td></tr>
<tr><th>Spurious interrupts</th><td>{{.Controller.Counts.Spurious}}</td></tr>
<tr><th>Dropped</th><td>{{.Drops.Edges}} edges, {{.Drops.Interrupts}} interrupts</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Counter</th><td>{{.Config.TickRateHz}} Hz, {{.Config.CounterBits}} bits</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Long press</th><td>{{.Config.LongPressMs}}ms</td></tr>
<tr><th>Blink</th><td>{{.Config.BlinkDutyMs}}ms / {{.Config.BlinkCycleMs}}ms</td></tr>
<tr><th>Report</th><td>{{if eq .Config.ReportMs 0}}disabled{{else}}{{.Config.ReportMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<pre id="log"></pre>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var log = document.getElementById("log");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function text(id, value) {
    var el = document.getElementById(id);
    if (el) { el.textContent = value; }
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");

    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(m) {
      try {
        var f = JSON.parse(m.data);
        if (f.type === "status") {
          text("session", f.status.session);
          text("led", f.status.led ? "ON" : "OFF");
          document.getElementById("led").className = f.status.led ? "on" : "off";
          text("counter", f.status.counter);
        } else if (f.type === "event") {
          log.textContent = f.event.timestamp + " " + f.event.type + "\n" + log.textContent.slice(0, 2000);
        } else if (f.type === "sample") {
          text(f.sample.kind, f.sample.error ? "error" : f.sample.value.toFixed(1) + " " + f.sample.unit);
        }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
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
	indexTmpl.Execute(w, data)
}
