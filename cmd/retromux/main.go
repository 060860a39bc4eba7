package main

import (
	"context"
	"flag"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/yosanyu/retromux/config"
	"github.com/yosanyu/retromux/host"
	"github.com/yosanyu/retromux/instance"
	"github.com/yosanyu/retromux/rdb"
	"github.com/yosanyu/retromux/sink"
	"github.com/yosanyu/retromux/statsview"
)

type options struct {
	module   string
	content  string
	count    int
	duration time.Duration
	audio    string
	video    string
	outDir   string
	dbPath   string
	stats    bool
}

func main() {
	var (
		modulePath  = flag.String("module", "", "Path to the core to load")
		contentPath = flag.String("content", "", "Path to the content to run (file or archive)")
		count       = flag.Int("n", 1, "Concurrent instances of the module")
		duration    = flag.Duration("duration", 0, "Stop after this long (0 = run until interrupted)")
		audioMode   = flag.String("audio", "null", "Audio sink: null, oto, or wav")
		videoMode   = flag.String("video", "null", "Video sink: null or bmp")
		outDir      = flag.String("out", ".", "Directory for wav and bmp captures")
		configPath  = flag.String("config", "", "Config file (default: the user config dir)")
		dbPath      = flag.String("db", "", "RetroArch .rdb database for content identification")
		printSchema = flag.Bool("print-config-schema", false, "Print the config JSON schema and exit")
		stats       = flag.Bool("stats", false, "Serve runtime statistics over HTTP")
		interactive = flag.Bool("i", false, "Interactive dashboard")
	)
	flag.Parse()

	if *printSchema {
		blob, err := config.Schema()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(blob))
		return
	}

	if *modulePath == "" || *contentPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: retromux -module <core> -content <game> [-n count] [-duration 30s]")
		fmt.Fprintln(os.Stderr, "       retromux -module <core> -content <game> -i  (interactive dashboard)")
		fmt.Fprintln(os.Stderr, "       retromux -print-config-schema")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := options{
		module:   *modulePath,
		content:  *contentPath,
		count:    *count,
		duration: *duration,
		audio:    *audioMode,
		video:    *videoMode,
		outDir:   *outDir,
		dbPath:   *dbPath,
		stats:    *stats,
	}

	if *interactive {
		if err := runInteractive(cfg, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts options) error {
	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	h, err := buildHost(log, cfg, opts)
	if err != nil {
		return err
	}
	defer h.ShutdownAll()

	if opts.stats {
		statsview.Launch(os.Stdout)
	}

	identify(log, opts.dbPath, opts.content)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := host.LaunchSpec{ModulePath: opts.module, ContentPath: opts.content}
	ins := make([]*instance.Instance, 0, opts.count)
	for i := 0; i < opts.count; i++ {
		in, launchErr := h.Launch(spec)
		if launchErr != nil {
			return fmt.Errorf("launch %d: %w", i, launchErr)
		}
		ins = append(ins, in)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, in := range ins {
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(gctx, 30*time.Second)
			defer cancel()
			return in.WaitReady(wctx)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("instance failed to start: %w", err)
	}

	si := ins[0].SystemInfo()
	av := ins[0].AVInfo()
	log.Info("fleet running",
		zap.Int("instances", len(ins)),
		zap.String("core", si.LibraryName),
		zap.String("version", si.LibraryVersion),
		zap.Float64("fps", av.Timing.FPS),
		zap.Float64("sampleRate", av.Timing.SampleRate))

	var deadline <-chan time.Time
	if opts.duration > 0 {
		deadline = time.After(opts.duration)
	}
	select {
	case <-ctx.Done():
		log.Info("interrupted")
	case <-deadline:
	}

	h.ShutdownAll()
	for i, in := range ins {
		log.Info("instance finished",
			zap.Int("instance", i),
			zap.Int("slot", int(in.SlotID())),
			zap.Uint64("frames", in.FramesRun()),
			zap.Uint64("dupFrames", in.DuplicateFrames()),
			zap.Uint64("audioDropped", in.AudioDropped()))
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func buildHost(log *zap.Logger, cfg *config.Config, opts options) (*host.Host, error) {
	hostOpts := []host.Option{host.WithLogger(log), host.WithConfig(cfg)}

	switch opts.audio {
	case "null":
	case "oto":
		hostOpts = append(hostOpts, host.WithAudioSink(func() sink.Audio {
			return sink.NewPlayer(log)
		}))
	case "wav":
		var n atomic.Int32
		hostOpts = append(hostOpts, host.WithAudioSink(func() sink.Audio {
			path := filepath.Join(opts.outDir, fmt.Sprintf("retromux-%d.wav", n.Add(1)))
			return sink.NewRecorder(path)
		}))
	default:
		return nil, fmt.Errorf("unknown audio sink %q", opts.audio)
	}

	switch opts.video {
	case "null":
	case "bmp":
		var n atomic.Int32
		hostOpts = append(hostOpts, host.WithVideoSink(func() sink.Video {
			dir := filepath.Join(opts.outDir, fmt.Sprintf("frames-%d", n.Add(1)))
			d, err := sink.NewFrameDumper(dir, 60)
			if err != nil {
				log.Warn("frame dumper unavailable", zap.Error(err))
				return sink.NullVideo{}
			}
			return d
		}))
	default:
		return nil, fmt.Errorf("unknown video sink %q", opts.video)
	}

	return host.New(hostOpts...)
}

// identify looks the content up in a RetroArch database by CRC32. Archives
// hash as themselves, so only raw dumps will match.
func identify(log *zap.Logger, dbPath, contentPath string) {
	if dbPath == "" {
		return
	}
	db, err := rdb.Open(dbPath)
	if err != nil {
		log.Warn("content database unavailable", zap.Error(err))
		return
	}

	f, err := os.Open(contentPath)
	if err != nil {
		log.Warn("content unreadable for identification", zap.Error(err))
		return
	}
	defer f.Close()
	sum := crc32.NewIEEE()
	if _, err := io.Copy(sum, f); err != nil {
		log.Warn("content unreadable for identification", zap.Error(err))
		return
	}

	game, ok := db.FindCRC32(sum.Sum32())
	if !ok {
		log.Info("content not in database",
			zap.String("content", contentPath),
			zap.Int("entries", db.Len()))
		return
	}
	log.Info("content identified",
		zap.String("name", game.Name),
		zap.String("developer", game.Developer),
		zap.Uint("year", game.ReleaseYear))
}
