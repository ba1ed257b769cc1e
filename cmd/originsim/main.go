// Command originsim runs the Origin smart telescope simulator: the dual
// HTTP/WebSocket device port, the UDP discovery beacon, the periodic
// notification emitter, and optionally a serial handpad and an admin debug
// server.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/skyfield-data/originsim/internal/catalog"
	"github.com/skyfield-data/originsim/internal/config"
	"github.com/skyfield-data/originsim/internal/control"
	"github.com/skyfield-data/originsim/internal/discovery"
	"github.com/skyfield-data/originsim/internal/dispatch"
	"github.com/skyfield-data/originsim/internal/emit"
	"github.com/skyfield-data/originsim/internal/gateway"
	"github.com/skyfield-data/originsim/internal/handpad"
	"github.com/skyfield-data/originsim/internal/httputil"
	"github.com/skyfield-data/originsim/internal/sim"
	"github.com/skyfield-data/originsim/internal/skyimage"
	"github.com/skyfield-data/originsim/internal/telescope"
	"github.com/skyfield-data/originsim/internal/timeutil"
	"github.com/skyfield-data/originsim/internal/units"
	"github.com/skyfield-data/originsim/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON config file")
	listen      = flag.String("listen", "", "Device listen address (overrides config)")
	adminListen = flag.String("admin-listen", "", "Admin debug server address (overrides config)")
	fakeInit    = flag.Bool("fake-initialize", false, "Complete RunInitialize after one second")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("originsim %s (%s, built %s), device firmware %s",
			version.Version, version.GitSHA, version.BuildTime, version.DeviceVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	listenAddr := cfg.GetListenAddr()
	if *listen != "" {
		listenAddr = *listen
	}
	adminAddr := cfg.GetAdminAddr()
	if *adminListen != "" {
		adminAddr = *adminListen
	}
	fake := cfg.GetFakeInitialize() || *fakeInit

	clock := timeutil.RealClock{}
	state := telescope.NewState(
		units.DegToRad(cfg.GetLatitudeDeg()),
		units.DegToRad(cfg.GetLongitudeDeg()))
	jitter := telescope.NewJitter(cfg.GetSeed())
	loop := telescope.NewLoop(clock)

	db, err := catalog.Open(cfg.GetCatalogPath(), cfg.GetImageDir())
	if err != nil {
		log.Fatalf("failed to open catalog: %v", err)
	}
	defer db.Close()

	hub := emit.NewHub(loop)
	emitter := emit.NewEmitter(loop, hub, state, clock, jitter)

	preview := skyimage.NewPreview()
	provider := skyimage.NewFlatProvider(preview, func(fileLocation string) {
		loop.Post(func() {
			// Imaging ticks manage FileLocation and their own broadcasts.
			if state.IsImaging {
				return
			}
			state.FileLocation = fileLocation
			state.ImageType = telescope.ImageTypeHips
			emitter.BroadcastNewImageReady()
		})
	})

	scheduler := sim.NewScheduler(loop, state, emitter, jitter, provider, db)

	dispatcher := dispatch.New(dispatch.Deps{
		State:      state,
		Clock:      clock,
		Activities: &forcedFakeInit{scheduler: scheduler, force: fake},
		Catalog:    db,
	})

	gw := gateway.NewServer(listenAddr, loop, clock, dispatcher, hub, preview, db, os.ReadFile)
	beacon := discovery.NewBeacon(
		cfg.GetSerialNumber(), cfg.GetDiscoveryPort(), cfg.GetDiscoveryInterval(), clock)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("run loop exited: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gw.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("gateway exited: %v", err)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := emitter.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("emitter exited: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := beacon.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("discovery beacon exited: %v", err)
		}
	}()

	if portPath := cfg.GetHandpadPort(); portPath != "" {
		port, err := handpad.OpenPort(portPath)
		if err != nil {
			log.Fatalf("failed to open handpad port: %v", err)
		}
		pad := handpad.New(port, loop, state, dispatcher)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pad.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("handpad exited: %v", err)
			}
		}()
	}

	if adminAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runAdminServer(ctx, adminAddr, db, loop, state, hub, clock)
		}()
	}

	log.Printf("originsim listening on %s (device %s-%s)",
		listenAddr, version.DeviceModel, cfg.GetSerialNumber())
	wg.Wait()
}

// forcedFakeInit forwards activity starts to the scheduler, forcing the fake
// initialization path when configured.
type forcedFakeInit struct {
	scheduler *sim.Scheduler
	force     bool
}

func (f *forcedFakeInit) StartSlew()    { f.scheduler.StartSlew() }
func (f *forcedFakeInit) StartImaging() { f.scheduler.StartImaging() }
func (f *forcedFakeInit) StartInitialize(fake bool) {
	f.scheduler.StartInitialize(fake || f.force)
}

// runAdminServer serves the catalog debug routes plus consistent state and
// connection snapshots for operators.
func runAdminServer(ctx context.Context, addr string, db *catalog.DB, loop *telescope.Loop, state *telescope.State, hub *emit.Hub, clock timeutil.Clock) {
	mux := http.NewServeMux()
	db.AttachAdminRoutes(mux)
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		var snapshot control.MountStatus
		loop.Call(func() {
			snapshot = control.BuildMountStatus(state, control.Envelope{}, clock.Now())
		})
		httputil.WriteJSON(w, http.StatusOK, snapshot)
	})
	mux.HandleFunc("/connections", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		ids := []string{}
		loop.Call(func() {
			for _, id := range hub.ConnectionIDs() {
				ids = append(ids, id.String())
			}
		})
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"count":       len(ids),
			"connections": ids,
		})
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	log.Printf("admin server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("admin server exited: %v", err)
	}
}
