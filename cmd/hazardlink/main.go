package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/hazardlink/internal/config"
	"github.com/banshee-data/hazardlink/internal/db"
	"github.com/banshee-data/hazardlink/internal/framecodec"
	"github.com/banshee-data/hazardlink/internal/fusion"
	"github.com/banshee-data/hazardlink/internal/monitoring"
	"github.com/banshee-data/hazardlink/internal/pipeline"
	"github.com/banshee-data/hazardlink/internal/sim"
	"github.com/banshee-data/hazardlink/internal/transport"
	"github.com/banshee-data/hazardlink/internal/version"
)

const defaultDBPath = "hazardlink.db"

type options struct {
	configPath    string
	scenarioPath  string
	serialPath    string
	disableSerial bool
	loopback      bool
	dbPath        string
	listen        string
	once          bool
	showVersion   bool
	debug         bool
}

func parseFlags(args []string, errOut io.Writer) (options, []string, error) {
	var o options
	fs := flag.NewFlagSet("hazardlink", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.configPath, "config", "", "Fusion config JSON (defaults built in)")
	fs.StringVar(&o.scenarioPath, "scenario", "", "Scenario JSON to replay as camera, detector and lidar")
	fs.StringVar(&o.serialPath, "serial", "/dev/ttyUSB0", "Serial device of the vehicle link")
	fs.BoolVar(&o.disableSerial, "disable-serial", false, "Run without the vehicle link")
	fs.BoolVar(&o.loopback, "loopback", false, "Use an in-memory loopback link instead of the serial device")
	fs.BoolVar(&o.loopback, "dev", false, "Alias for -loopback")
	fs.StringVar(&o.dbPath, "db", defaultDBPath, "SQLite cycle log; empty disables recording")
	fs.StringVar(&o.listen, "listen", "", "Debug HTTP listen address, e.g. localhost:8080")
	fs.BoolVar(&o.once, "once", false, "Run a single cycle, print it and exit")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&o.debug, "debug", false, "Enable per-cycle diagnostic logging")
	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	return o, fs.Args(), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("hazardlink: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, rest, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	if len(rest) > 0 {
		switch rest[0] {
		case "migrate":
			return db.RunMigrateCommand(stdout, rest[1:], opts.dbPath)
		default:
			return fmt.Errorf("unknown command %q", rest[0])
		}
	}

	monitoring.SetVerbose(opts.debug)
	if opts.debug {
		pipeline.SetLogWriters(stderr, stderr, stderr)
	} else {
		pipeline.SetLogWriters(stderr, nil, nil)
	}
	log.Printf("starting %s", version.String())

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	a, err := wire(opts, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.loop.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	if opts.once {
		res, err := a.loop.RunCycle(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, res.String())
		return nil
	}

	var wg sync.WaitGroup
	srvCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		wg.Wait()
	}()
	if opts.listen != "" {
		mux := http.NewServeMux()
		if err := a.attachAdminRoutes(mux); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(srvCtx, opts.listen, mux)
		}()
	}

	err = a.loop.Run(ctx)
	if errors.Is(err, pipeline.ErrSourceStopped) {
		log.Printf("frame source finished: %v", err)
		err = nil
	}
	s := a.status.Snapshot()
	log.Printf("stopped after %d cycles (%d skipped, %d peer reports, %d link errors)",
		s.Counters.Cycles, s.Counters.Skipped, s.Counters.PeerReports,
		s.Counters.FrameErrors+s.Counters.TransportErrors)
	return err
}

func loadConfig(path string) (*config.FusionConfig, error) {
	if path == "" {
		return config.DefaultFusionConfig(), nil
	}
	cfg, err := config.LoadFusionConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// app holds the wired collaborators of one process run.
type app struct {
	loop   *pipeline.Loop
	status *pipeline.StatusBoard
	link   *transport.SerialTransport
	store  *db.DB
}

func wire(opts options, cfg *config.FusionConfig) (*app, error) {
	if opts.scenarioPath == "" {
		return nil, errors.New("no frame source: -scenario is required")
	}
	sc, err := sim.LoadScenario(opts.scenarioPath)
	if err != nil {
		return nil, err
	}
	replayer, err := sim.NewReplayer(sc)
	if err != nil {
		return nil, err
	}
	log.Printf("replaying scenario %q (%d frames)", sc.Name, len(sc.Frames))

	a := &app{status: pipeline.NewStatusBoard()}
	fail := func(err error) (*app, error) {
		replayer.Close()
		if a.link != nil {
			a.link.Close()
		}
		if a.store != nil {
			a.store.Close()
		}
		return nil, err
	}

	switch {
	case opts.disableSerial:
		log.Printf("vehicle link disabled")
	case opts.loopback:
		a.link = transport.NewLoopback()
		log.Printf("using loopback vehicle link")
	default:
		link, err := transport.Open(opts.serialPath, cfg.PortOptions(), transport.OpenSerial)
		if err != nil {
			// The fusion core keeps running; only outbound transmission is lost.
			log.Printf("vehicle link unavailable, continuing without transmission: %v", err)
			break
		}
		a.link = link
		log.Printf("vehicle link on %s", opts.serialPath)
	}

	if opts.dbPath != "" {
		a.store, err = db.NewDB(opts.dbPath)
		if err != nil {
			return fail(fmt.Errorf("open cycle log: %w", err))
		}
	}

	lc := pipeline.LoopConfig{
		Geometry:       cfg.GetCameraGeometry(),
		Matcher:        cfg.GetMatcher(),
		Classifier:     cfg.GetClassifier(),
		Proximity:      cfg.NewProximityMonitor(),
		CaptureTimeout: cfg.GetCaptureTimeout(),
		Camera:         replayer,
		Detector:       replayer,
		Lidar:          replayer,
		Status:         a.status,
		OnPeerReport:   logPeerReport,
	}
	// Leave the interfaces nil rather than holding typed nils.
	if a.link != nil {
		lc.Transport = a.link
	}
	if a.store != nil {
		lc.Recorder = a.store
	}
	a.loop, err = pipeline.NewLoop(lc)
	if err != nil {
		return fail(err)
	}
	return a, nil
}

func logPeerReport(p framecodec.PeerReport) {
	if p.Hazard != fusion.HazardNone {
		log.Printf("vehicle reports %s", p)
		return
	}
	monitoring.Debugf("vehicle reports %s", p)
}

func (a *app) attachAdminRoutes(mux *http.ServeMux) error {
	a.status.AttachAdminRoutes(mux)
	if a.link != nil {
		a.link.AttachAdminRoutes(mux)
	}
	if a.store != nil {
		if err := a.store.AttachAdminRoutes(mux); err != nil {
			return fmt.Errorf("attach db routes: %w", err)
		}
	}
	return nil
}

func serveDebug(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server: %v", err)
		}
	}()
	log.Printf("debug routes on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("debug server shutdown error: %v", err)
	}
}
