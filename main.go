package main

import (
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"git.fiblab.net/sim/crowddynamics/config"
	"git.fiblab.net/sim/crowddynamics/direction"
	"git.fiblab.net/sim/crowddynamics/floorfield"
	"git.fiblab.net/sim/crowddynamics/logutil"
	"git.fiblab.net/sim/crowddynamics/model"
	"git.fiblab.net/sim/crowddynamics/sim"
	"github.com/sirupsen/logrus"
)

var (
	// 配置信息
	geometryFile     = flag.String("geometry", "", "input geometry/events/population JSON file (the ini_file's replacement, per spec §6)")
	outputDir        = flag.String("output", "", "output directory for the trajectory file and copied inputs; empty disables both")
	withinSubroom    = flag.Bool("within-subroom", false, "restrict FindExit's candidate doors to the agent's current subroom instead of its whole room")
	fps              = flag.Float64("fps", 4, "trajectory frames emitted per simulated second")
	tMax             = flag.Float64("t-max", 300, "maximum simulated time in seconds")
	dt               = flag.Float64("dt", 0.05, "simulation time step in seconds")
	seed             = flag.Int64("seed", 0, "RNG seed for initial distribution, sources and waiting-area successor sampling")
	gridSpacing      = flag.Float64("grid-spacing", 0.2, "floor-field grid spacing h, in meters")
	interactionRange = flag.Float64("interaction-range", 2.0, "operational model's maximum interaction range; also the neighborhood grid's cell size")
	logLevel         = flag.String("log-level", "info", "log level [debug, info, warn, error, fatal, panic]")

	// 性能测试
	benchmark = flag.Bool("benchmark", false, "benchmark mode")
	pprofAddr = flag.String("pprof", "", "pprof listening address, empty disables")

	LOG_LEVELS = map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"info":  logrus.InfoLevel,
		"warn":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"fatal": logrus.FatalLevel,
		"panic": logrus.PanicLevel,
	}
)

var log = logutil.For("main")

func main() {
	flag.Parse()
	level, ok := LOG_LEVELS[*logLevel]
	if !ok {
		logrus.Fatalf("invalid log level: %s", *logLevel)
	}
	logutil.Configure(level)

	if *geometryFile == "" {
		logrus.Fatal("missing required -geometry flag")
	}

	if *pprofAddr != "" {
		// 启动pprof
		startHTTPDebugger(*pprofAddr)
	}

	cfg := config.Config{
		GeometryFile:  *geometryFile,
		WithinSubroom: *withinSubroom,
		FPS:           *fps,
		TMax:          *tMax,
		DT:            *dt,
		Seed:          *seed,
	}

	var trajectoryPath string
	if *outputDir != "" {
		copied, err := CopyInputsToOutput(cfg, *outputDir)
		if err != nil {
			logrus.Fatalf("failed to copy inputs to output dir: %v", err)
		}
		cfg = copied.Config
		trajectoryPath = copied.TrajectoryPath
	}

	loaded, err := (config.JSONLoader{}).Load(cfg)
	if err != nil {
		logrus.Fatalf("failed to load %s: %v", cfg.GeometryFile, err)
	}

	mdl := model.NewSocialForceModel()
	mdl.InteractionRadius = *interactionRange

	writer, closeWriter, err := newTrajectoryWriter(trajectoryPath)
	if err != nil {
		logrus.Fatalf("failed to open trajectory output: %v", err)
	}
	defer closeWriter()

	s, err := sim.New(
		cfg, loaded, mdl,
		direction.MinSeparationShorterLine{},
		direction.WaitAtMiddle{},
		writer, floorfield.Homogeneous, *gridSpacing, *interactionRange,
	)
	if err != nil {
		logrus.Fatalf("failed to initialize simulation: %v", err)
	}

	if *benchmark {
		// 性能测试
		runBenchmark(s)
		return
	}

	runToCompletion(s)
}

// runToCompletion steps s until it terminates on its own (spec §4.11's
// "agent list empty and sources exhausted, or simulated time exceeds
// T_max"), or until a second SIGINT/SIGTERM forces an immediate exit.
func runToCompletion(s *sim.Simulation) {
	var stopping atomic.Bool

	// 创建监听退出chan
	signalCh := make(chan os.Signal, 1)
	// 监听指定信号 ctrl+c kill
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Info("stopping at next step boundary...")
		stopping.Store(true)
		<-signalCh
		os.Exit(1) // 强制结束
	}()

	if err := s.Writer.WriteHeader(); err != nil {
		logrus.Fatalf("failed to write trajectory header: %v", err)
	}
	for !s.Done() && !stopping.Load() {
		if err := s.Step(); err != nil {
			logrus.Fatalf("simulation step failed at t=%.3f: %v", s.Now(), err)
		}
	}
	if err := s.Writer.Close(); err != nil {
		log.Errorf("failed to close trajectory writer: %v", err)
	}
	log.Infof("simulation finished at t=%.3f with %d agents remaining", s.Now(), s.AgentCount())
}

// newTrajectoryWriter opens path for the CSV reference TrajectoryWriter
// (spec §6), or returns the null writer when path is empty (e.g. no
// -output flag, as in benchmark runs where trajectory I/O should not
// sit on the critical path per spec §5).
func newTrajectoryWriter(path string) (sim.TrajectoryWriter, func(), error) {
	if path == "" {
		return sim.NullTrajectoryWriter{}, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return sim.NewCSVTrajectoryWriter(f), func() { f.Close() }, nil
}
