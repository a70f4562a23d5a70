// Command navigator runs the navigation stack: the costmap generator, the
// dynamic-window planner, the HTTP service surface, the monitor UI and the
// telemetry stream, wired together over the in-process bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/navstack/internal/api"
	"github.com/banshee-data/navstack/internal/bus"
	"github.com/banshee-data/navstack/internal/config"
	"github.com/banshee-data/navstack/internal/costmap"
	"github.com/banshee-data/navstack/internal/dwa"
	"github.com/banshee-data/navstack/internal/frames"
	"github.com/banshee-data/navstack/internal/mapstore"
	"github.com/banshee-data/navstack/internal/monitor"
	"github.com/banshee-data/navstack/internal/monitoring"
	"github.com/banshee-data/navstack/internal/msg"
	"github.com/banshee-data/navstack/internal/scansource"
	"github.com/banshee-data/navstack/internal/telemetry"
	"github.com/banshee-data/navstack/internal/timeutil"
	"github.com/banshee-data/navstack/internal/version"
)

var (
	configFile = flag.String("config", "", "Path to JSON tuning configuration file (defaults apply when empty)")
	listen     = flag.String("listen", ":8080", "HTTP listen address for the API and monitor")
	mapDBPath  = flag.String("map-db", "maps.db", "Path to the sqlite map database")
	seedMap    = flag.String("seed-map", "", "Optional ASCII grid file to store before startup")
	seedMapID  = flag.Int("seed-map-id", 1, "Map id under which -seed-map is stored")
	scanUDP    = flag.String("scan-udp", ":2368", "UDP listen address for scan datagrams (empty disables)")
	grpcListen = flag.String("grpc-listen", "localhost:50061", "gRPC listen address for telemetry streaming (empty disables)")
	debugMode  = flag.Bool("debug", false, "Enable trace logging (overrides debug_mode from the config file)")
	showVer    = flag.Bool("version", false, "Print version information and exit")

	mountX   = flag.Float64("sensor-mount-x", 0, "Laser mount offset forward of base_link (m)")
	mountY   = flag.Float64("sensor-mount-y", 0, "Laser mount offset left of base_link (m)")
	mountYaw = flag.Float64("sensor-mount-yaw", 0, "Laser mount yaw relative to base_link (rad)")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("navigator %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	}
	monitoring.SetDebug(*debugMode || cfg.GetDebugMode())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := mapstore.Open(*mapDBPath)
	if err != nil {
		log.Fatalf("map store: %v", err)
	}
	defer store.Close()

	if *seedMap != "" {
		if err := store.SeedFromASCII(ctx, *seedMapID, *seedMap); err != nil {
			log.Fatalf("seed map: %v", err)
		}
		monitoring.Logf("seeded map %d from %s", *seedMapID, *seedMap)
	}

	b := bus.New()
	clock := timeutil.RealClock{}

	// Transform table: fixed sensor mount and a map==odom world until an
	// external localiser feeds a better odom->map estimate.
	tf := frames.NewStaticProvider()
	tf.Set(msg.FrameLaser, msg.FrameBase, frames.Transform{X: *mountX, Y: *mountY, Yaw: *mountYaw})
	tf.Set(msg.FrameOdom, msg.FrameMap, frames.Identity())
	tf.Set(msg.FrameBase, msg.FrameOdom, frames.Identity())
	chain := frames.NewChain(tf, msg.FrameLaser, msg.FrameBase, msg.FrameOdom, msg.FrameMap)

	gen := costmap.New(cfg, store, b, clock, chain)
	if err := gen.Startup(ctx); err != nil {
		log.Fatalf("costmap startup: %v", err)
	}

	planner := dwa.New(cfg, b, clock, gen)

	srv := api.NewServer(gen, planner, b)
	mon := monitor.NewWebServer(gen, b)
	mon.Register(srv.ServeMux())

	var wg sync.WaitGroup
	run := func(name string, f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
			monitoring.Tracef("%s finished", name)
		}()
	}

	// Inbound message routing: the bus feeds sensor snapshots into the
	// generator, the planner and the transform table.
	route := func(name, topic string, buffer int, handle func(payload interface{})) {
		run(name, func() {
			ch, cancelSub := b.Subscribe(topic, buffer)
			defer cancelSub()
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-ch:
					handle(m.Payload)
				}
			}
		})
	}
	route("odom router", msg.TopicOdom, 16, func(payload interface{}) {
		o, ok := payload.(msg.Odometry)
		if !ok {
			return
		}
		tf.Set(msg.FrameBase, msg.FrameOdom, frames.FromPose(o.Pose()))
		gen.OnOdom(o)
		planner.OnOdom(o)
	})
	route("scan router", msg.TopicScan, 16, func(payload interface{}) {
		if s, ok := payload.(msg.LaserScan); ok {
			gen.OnScan(s)
		}
	})
	route("path router", msg.TopicGlobalPath, 4, func(payload interface{}) {
		if p, ok := payload.(msg.Path); ok {
			planner.OnPath(p)
		}
	})
	route("obstacle router", msg.TopicLocalObstacles, 16, func(payload interface{}) {
		if pc, ok := payload.(msg.PointCloud); ok {
			planner.OnObstacles(pc)
		}
	})

	run("local costmap loop", func() { gen.RunLocal(ctx) })
	run("planner loop", func() { planner.Run(ctx) })
	run("api cache", func() { srv.Watch(ctx) })
	run("monitor collector", func() { mon.Collect(ctx) })

	if *scanUDP != "" {
		listener := scansource.NewUDPListener(*scanUDP, b)
		run("scan listener", func() {
			if err := listener.Run(ctx); err != nil {
				monitoring.Logf("scan listener: %v", err)
			}
		})
	}

	var pub *telemetry.Publisher
	if *grpcListen != "" {
		tcfg := telemetry.DefaultConfig()
		tcfg.ListenAddr = *grpcListen
		pub = telemetry.NewPublisher(tcfg, b)
		if err := pub.Start(); err != nil {
			log.Fatalf("telemetry: %v", err)
		}
	}

	go func() {
		if err := srv.Start(*listen); err != nil {
			log.Fatalf("http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	monitoring.Logf("shutting down")
	cancel()
	if pub != nil {
		pub.Stop()
	}
	// The planner publishes a final zero twist as its loop exits; wait for
	// the loops so the command is on the wire before the process dies.
	wg.Wait()
}
