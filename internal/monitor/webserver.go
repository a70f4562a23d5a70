// Package monitor provides the debugging web UI for the navigation stack:
// an echarts page of recent planner ticks, a websocket feed of live status
// and a PNG rendering of the global costmap with the most recent selected
// trajectories overlaid.
package monitor

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/navstack/internal/bus"
	"github.com/banshee-data/navstack/internal/costmap"
	"github.com/banshee-data/navstack/internal/dwa"
	"github.com/banshee-data/navstack/internal/monitoring"
	"github.com/banshee-data/navstack/internal/msg"
)

// historySize bounds the tick ring buffer backing the charts.
const historySize = 600

// WebServer serves the monitor endpoints and fans live planner status out to
// websocket clients.
type WebServer struct {
	gen *costmap.Generator
	bus *bus.Bus

	upgrader websocket.Upgrader

	mu       sync.Mutex
	history  []dwa.Status
	clients  map[*websocket.Conn]struct{}
	lastTraj []dwaTrajectory
}

type dwaTrajectory struct {
	Xs []float64
	Ys []float64
}

// NewWebServer builds the monitor against the generator and the bus.
func NewWebServer(gen *costmap.Generator, b *bus.Bus) *WebServer {
	return &WebServer{
		gen:      gen,
		bus:      b,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Register mounts the monitor routes onto a mux.
func (ws *WebServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("/monitor", ws.handleIndex)
	mux.HandleFunc("/monitor/ticks", ws.handleTickChart)
	mux.HandleFunc("/monitor/costmap.png", ws.handleCostmapPNG)
	mux.HandleFunc("/monitor/ws", ws.handleWebsocket)
}

// Collect consumes planner status from the bus, recording history and
// pushing updates to websocket clients. It blocks until ctx is cancelled.
func (ws *WebServer) Collect(ctx context.Context) {
	ch, cancel := ws.bus.Subscribe(msg.TopicPlannerStatus, 64)
	defer cancel()

	for {
		var m bus.Message
		select {
		case <-ctx.Done():
			return
		case m = <-ch:
		}
		st, ok := m.Payload.(dwa.Status)
		if !ok {
			continue
		}

		ws.mu.Lock()
		ws.history = append(ws.history, st)
		if len(ws.history) > historySize {
			ws.history = ws.history[len(ws.history)-historySize:]
		}
		if len(st.Trajectory) > 0 {
			traj := dwaTrajectory{}
			for _, p := range st.Trajectory {
				traj.Xs = append(traj.Xs, p.X)
				traj.Ys = append(traj.Ys, p.Y)
			}
			ws.lastTraj = append(ws.lastTraj, traj)
			if len(ws.lastTraj) > 5 {
				ws.lastTraj = ws.lastTraj[len(ws.lastTraj)-5:]
			}
		}
		conns := make([]*websocket.Conn, 0, len(ws.clients))
		for c := range ws.clients {
			conns = append(conns, c)
		}
		ws.mu.Unlock()

		for _, c := range conns {
			if err := c.WriteJSON(st); err != nil {
				ws.dropClient(c)
			}
		}
	}
}

func (ws *WebServer) dropClient(c *websocket.Conn) {
	ws.mu.Lock()
	delete(ws.clients, c)
	ws.mu.Unlock()
	c.Close()
}

func (ws *WebServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[monitor] websocket upgrade failed: %v", err)
		return
	}
	ws.mu.Lock()
	ws.clients[conn] = struct{}{}
	ws.mu.Unlock()

	// Reader loop only detects disconnects; the collector writes.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				ws.dropClient(conn)
				return
			}
		}
	}()
}

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// handleTickChart renders the recent planner history as an echarts line
// chart: best linear velocity and best cost per tick.
func (ws *WebServer) handleTickChart(w http.ResponseWriter, r *http.Request) {
	ws.mu.Lock()
	history := make([]dwa.Status, len(ws.history))
	copy(history, ws.history)
	ws.mu.Unlock()

	xs := make([]string, 0, len(history))
	vel := make([]opts.LineData, 0, len(history))
	cost := make([]opts.LineData, 0, len(history))
	for _, st := range history {
		xs = append(xs, st.Stamp.Format("15:04:05.00"))
		vel = append(vel, opts.LineData{Value: st.Best.Linear})
		c := st.BestCost
		if c > 1e6 {
			c = 1e6 // keep infinite-cost ticks plottable
		}
		cost = append(cost, opts.LineData{Value: c})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "planner ticks", Subtitle: "selected velocity and cost"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(xs).
		AddSeries("best linear vel (m/s)", vel).
		AddSeries("best cost", cost)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(w); err != nil {
		monitoring.Logf("[monitor] chart render failed: %v", err)
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head><title>navstack monitor</title></head>
<body>
<h2>navstack monitor</h2>
<ul>
<li><a href="/monitor/ticks">planner tick chart</a></li>
<li><a href="/monitor/costmap.png">global costmap</a></li>
<li><a href="/api/planner/status">planner status (JSON)</a></li>
</ul>
<h3>live status</h3>
<pre id="status">waiting for planner ticks...</pre>
<script>
const out = document.getElementById("status");
const sock = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/monitor/ws");
sock.onmessage = (ev) => { out.textContent = JSON.stringify(JSON.parse(ev.data), null, 2); };
sock.onclose = () => { out.textContent += "\n[socket closed]"; };
</script>
</body>
</html>
`
