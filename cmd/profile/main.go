//go:build profiling
// +build profiling

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"time"

	"github.com/felixge/fgprof"
	"github.com/grafana/pyroscope-go"

	"github.com/meigma/arcguard"
)

type profileKind string

const (
	profileCPU     profileKind = "cpu"
	profileFG      profileKind = "fgprof"
	profileTrace   profileKind = "trace"
	profileNone    profileKind = "none"
	defaultPayload             = "tmp/profiledata"
	defaultArchive             = "tmp/profile.tar.gz"
	defaultDestDir             = "tmp/profileextract"
)

const (
	modeCreate  = "create"
	modeExtract = "extract"
	modeVerify  = "verify"
	modeAll     = "all"
)

func main() {
	var (
		payload   = flag.String("payload", defaultPayload, "payload directory to archive")
		archive   = flag.String("archive", defaultArchive, "archive path (format inferred from the name)")
		destDir   = flag.String("dest", defaultDestDir, "destination directory for extract")
		mode      = flag.String("mode", modeAll, "mode: create, extract, verify, or all")
		generate  = flag.Int("generate", 0, "generate this many random files in the payload first")
		fileSize  = flag.Int("file-size", 64<<10, "size of each generated file in bytes")
		profile   = flag.String("profile", "cpu", "profile type: cpu, fgprof, trace, none")
		outDir    = flag.String("out", "profiles", "output directory for profiles")
		label     = flag.String("label", "", "label suffix for profile files")
		repeat    = flag.Int("repeat", 1, "number of iterations")
		unique    = flag.Bool("unique-dest", false, "use a unique destination per extract iteration")
		maxRatio  = flag.Float64("max-ratio", arcguard.DefaultMaxCompressionRatio, "maximum compression ratio (0 disables)")
		logLevel  = flag.String("log-level", "", "log level: debug, info, warn, error")
		destStats = flag.Bool("dest-stats", false, "print extracted file stats after run")
		timeout   = flag.Duration("timeout", 15*time.Minute, "overall timeout")
		pyroAddr  = flag.String("pyroscope", "", "Pyroscope server URL (enables streaming, disables local profiles)")
	)
	flag.Parse()

	runID := time.Now().UTC().Format("20060102T150405Z")

	modeValue := strings.ToLower(*mode)
	switch modeValue {
	case modeCreate, modeExtract, modeVerify, modeAll:
	default:
		log.Fatalf("invalid mode %q (expected %s, %s, %s, or %s)", *mode, modeCreate, modeExtract, modeVerify, modeAll)
	}

	profileKindValue := profileKind(strings.ToLower(*profile))
	if !isValidProfile(profileKindValue) {
		log.Fatalf("invalid profile %q (expected cpu, fgprof, trace, none)", *profile)
	}

	// When Pyroscope is enabled, stream profiles instead of writing locally
	var pyroProfiler *pyroscope.Profiler
	if *pyroAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "arcguard-profile",
			ServerAddress:   *pyroAddr,
			// Grafana Cloud requires BasicAuth (AuthToken is deprecated)
			// User: instance ID from Grafana Cloud, Password: API token
			BasicAuthUser:     os.Getenv("PYROSCOPE_BASIC_AUTH_USER"),
			BasicAuthPassword: os.Getenv("PYROSCOPE_BASIC_AUTH_PASSWORD"),
			UploadRate:        5 * time.Second,
			Logger:            pyroscope.StandardLogger,
			Tags: map[string]string{
				"mode":    modeValue,
				"git_sha": os.Getenv("GITHUB_SHA"),
				"git_ref": os.Getenv("GITHUB_REF_NAME"),
				"run_id":  runID,
			},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("start pyroscope: %v", err)
		}
		pyroProfiler = profiler
		log.Printf("streaming profiles to %s", *pyroAddr)
	}

	if *pyroAddr == "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.Fatalf("create profile output dir: %v", err)
		}
	}

	if *generate > 0 {
		if err := generatePayload(*payload, *generate, *fileSize); err != nil {
			log.Fatalf("generate payload: %v", err)
		}
	}
	if modeValue == modeCreate || modeValue == modeAll {
		if _, err := os.Stat(*payload); err != nil {
			log.Fatalf("payload path %q: %v", *payload, err)
		}
	}
	if *repeat < 1 {
		log.Fatalf("repeat must be >= 1")
	}

	labelParts := []string{modeValue}
	if *label != "" {
		labelParts = append(labelParts, sanitizeLabel(*label))
	}
	labelParts = append(labelParts, runID)
	labelValue := strings.Join(labelParts, "_")

	// Only start local profiling when not streaming to Pyroscope
	var stopProfile func() error
	if *pyroAddr == "" {
		var err error
		stopProfile, err = startProfile(profileKindValue, *outDir, labelValue)
		if err != nil {
			log.Fatalf("start profile: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	security := arcguard.DefaultSecurityConfig()
	security.MaxCompressionRatio = *maxRatio
	security.MaxTotalBytes = 0
	security.MaxSingleEntryBytes = 0
	opts := []arcguard.Option{arcguard.WithSecurityConfig(security)}
	var createOpts []arcguard.CreateOption
	if *logLevel != "" {
		level, err := parseLogLevel(*logLevel)
		if err != nil {
			log.Fatalf("parse log level: %v", err)
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		opts = append(opts, arcguard.WithLogger(logger))
		createOpts = append(createOpts, arcguard.WithCreateLogger(logger))
	}

	extractRoot := *destDir
	if *unique {
		extractRoot = filepath.Join(*destDir, runID)
		if err := recreateDir(extractRoot); err != nil {
			log.Fatalf("create extract root: %v", err)
		}
	}

	for i := range *repeat {
		if *repeat > 1 {
			log.Printf("iteration %d/%d", i+1, *repeat)
		}
		if modeValue == modeCreate || modeValue == modeAll {
			start := time.Now()
			report, err := arcguard.Create(ctx, *payload, *archive, append(createOpts, arcguard.WithForce(true))...)
			if err != nil {
				log.Fatalf("create: %v", err)
			}
			log.Printf("create complete: %s (%d files, %d -> %d bytes)",
				time.Since(start), report.Files, report.BytesRead, report.BytesWritten)
		}

		if modeValue == modeVerify || modeValue == modeAll {
			start := time.Now()
			report, err := arcguard.VerifyFile(ctx, *archive, opts...)
			if err != nil {
				log.Fatalf("verify: %v", err)
			}
			log.Printf("verify complete: %s (%s, %d entries, %d issues)",
				time.Since(start), report.Status, report.TotalEntries, len(report.Issues))
		}

		if modeValue == modeExtract || modeValue == modeAll {
			dest := extractRoot
			if *unique {
				dest = filepath.Join(extractRoot, fmt.Sprintf("iter-%03d", i+1))
				if err := os.MkdirAll(dest, 0o755); err != nil {
					log.Fatalf("create extract dir: %v", err)
				}
			} else if err := recreateDir(dest); err != nil {
				log.Fatalf("create extract dir: %v", err)
			}
			start := time.Now()
			report, err := arcguard.ExtractFile(ctx, *archive, dest, opts...)
			if err != nil {
				log.Fatalf("extract: %v", err)
			}
			log.Printf("extract complete: %s (%d files, %d bytes)", time.Since(start), report.Files, report.BytesWritten)
		}
	}

	// Stop profiling - either Pyroscope or local
	if pyroProfiler != nil {
		if err := pyroProfiler.Stop(); err != nil {
			log.Fatalf("stop pyroscope: %v", err)
		}
		log.Printf("pyroscope profiling stopped")
	} else {
		if stopErr := stopProfile(); stopErr != nil {
			log.Fatalf("stop profile: %v", stopErr)
		}
		if err := writeHeapProfile(*outDir, labelValue); err != nil {
			log.Fatalf("write heap profile: %v", err)
		}
		if err := writeAllocsProfile(*outDir, labelValue); err != nil {
			log.Fatalf("write allocs profile: %v", err)
		}
	}
	if *destStats && (modeValue == modeExtract || modeValue == modeAll) {
		if err := printDestStats(extractRoot); err != nil {
			log.Fatalf("print dest stats: %v", err)
		}
	}
}

func isValidProfile(kind profileKind) bool {
	switch kind {
	case profileCPU, profileFG, profileTrace, profileNone:
		return true
	default:
		return false
	}
}

func startProfile(kind profileKind, outDir, label string) (func() error, error) {
	switch kind {
	case profileCPU:
		path := filepath.Join(outDir, "cpu_"+label+".pprof")
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		return func() error {
			pprof.StopCPUProfile()
			return f.Close()
		}, nil
	case profileFG:
		path := filepath.Join(outDir, "fgprof_"+label+".pprof")
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		stop := fgprof.Start(f, fgprof.FormatPprof)
		return func() error {
			stopErr := stop()
			closeErr := f.Close()
			return errors.Join(stopErr, closeErr)
		}, nil
	case profileTrace:
		path := filepath.Join(outDir, "trace_"+label+".out")
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		return func() error {
			trace.Stop()
			return f.Close()
		}, nil
	case profileNone:
		return func() error { return nil }, nil
	default:
		return nil, fmt.Errorf("unknown profile type: %s", kind)
	}
}

func writeHeapProfile(outDir, label string) error {
	path := filepath.Join(outDir, "heap_"+label+".pprof")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}

func writeAllocsProfile(outDir, label string) error {
	path := filepath.Join(outDir, "allocs_"+label+".pprof")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.Lookup("allocs").WriteTo(f, 0)
}

// generatePayload writes count files of random bytes, spread over a few
// subdirectories, below dir.
func generatePayload(dir string, count, size int) error {
	if err := recreateDir(dir); err != nil {
		return err
	}
	buf := make([]byte, size)
	for i := range count {
		sub := filepath.Join(dir, fmt.Sprintf("d%02d", i%16))
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return err
		}
		for j := range buf {
			buf[j] = byte(rand.IntN(256))
		}
		if err := os.WriteFile(filepath.Join(sub, fmt.Sprintf("f%05d.bin", i)), buf, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func recreateDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return os.MkdirAll(path, 0o755)
}

func sanitizeLabel(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}

func parseLogLevel(value string) (slog.Leveler, error) {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return nil, fmt.Errorf("unknown level %q", value)
	}
}

func printDestStats(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	var (
		files int
		dirs  int
		size  int64
	)
	walkErr := filepath.WalkDir(absDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	log.Printf("dest stats: dir=%s files=%d dirs=%d bytes=%d", absDir, files, dirs, size)
	return nil
}
