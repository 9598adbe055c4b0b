// pinhole renders a scene to a PNG or native raster file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"syscall"

	"pinhole/rasterimage"
	"pinhole/render"
	"pinhole/rendercache"
	"pinhole/scenepack"

	"cloud.google.com/go/storage"
	cloudtrace "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/golang/glog"
	"github.com/google/uuid"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/term"
	googleopt "google.golang.org/api/option"
)

var (
	sceneName = flag.String("scene", "default", "Built-in scene to render ("+strings.Join(scenepack.Names(), ", ")+").")
	sceneFile = flag.String("scene-file", "", "JSON scene description to render instead of a built-in scene.")
	width     = flag.Int("width", 0, "Output width in pixels.  Zero uses the scene's own size.")
	height    = flag.Int("height", 0, "Output height in pixels.  Zero uses the scene's own size.")
	workers   = flag.Int("workers", 0, "Rows rendered concurrently.  Zero means one per CPU.")
	maxDepth  = flag.Int("max-depth", -1, "Override the scene's reflection/refraction depth.  Negative keeps the scene's value.")

	outputFile = flag.String("output", "output.png", "Output file; .png or "+rasterimage.Extension+".")
	overwrite  = flag.Bool("overwrite", false, "Replace the output file if it exists.")

	cacheDir   = flag.String("cache-dir", "", "If set, reuse and record renders in a cache at this directory.")
	clearCache = flag.Bool("clear-cache", false, "Empty the cache directory before use.")

	uploadBucket = flag.String("upload-bucket", "", "If set, also upload the output to this GCS bucket.")

	monitoring           = flag.Bool("monitoring", false, "Export traces to Cloud Trace?")
	monitoringProject    = flag.String("monitoring-project", "", "Override project used for monitoring integration.  If not specified, the project associated with Application Default Credentials is used.")
	monitoringTraceRatio = flag.Float64("monitoring-trace-ratio", 1.0, "What ratio of traces should be exported?")

	cpuprofile = flag.String("cpu-profile", "", "write cpu profile to `file`")
	memprofile = flag.String("mem-profile", "", "write memory profile to `file`")
)

func main() {
	flag.Parse()

	glog.CopyStandardLogTo("INFO")
	defer glog.Flush()

	glog.Infof("flags:")
	flag.VisitAll(func(f *flag.Flag) {
		glog.Infof("%s: %q", f.Name, f.Value.String())
	})

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			glog.Exitf("could not create CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			glog.Exitf("could not start CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *monitoring {
		traceOpts := []cloudtrace.Option{}
		if *monitoringProject != "" {
			traceOpts = append(traceOpts, cloudtrace.WithProjectID(*monitoringProject))
		}

		_, traceShutdown, err := cloudtrace.InstallNewPipeline(traceOpts, sdktrace.WithSampler(sdktrace.TraceIDRatioBased(*monitoringTraceRatio)))
		if err != nil {
			glog.Exitf("Failed to install Cloud Trace OpenTelemetry trace pipeline: %v", err)
		}
		defer traceShutdown()
	}

	if err := do(ctx); err != nil {
		glog.Errorf("Error: %v", err)
		glog.Flush()
		pprof.StopCPUProfile()
		os.Exit(1)
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			glog.Exitf("could not create memory profile: %v", err)
		}
		defer f.Close()
		if err := pprof.WriteHeapProfile(f); err != nil {
			glog.Exitf("could not write memory profile: %v", err)
		}
	}
}

func loadPack() (*scenepack.Pack, error) {
	if *sceneFile != "" {
		return scenepack.Load(*sceneFile)
	}
	return scenepack.Builtin(*sceneName)
}

func do(ctx context.Context) error {
	// Check that the output file doesn't exist before spending time on the
	// render.
	if !*overwrite {
		if _, err := os.Stat(*outputFile); err == nil {
			return fmt.Errorf("output file %s exists; pass --overwrite to replace it", *outputFile)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("while checking output file: %w", err)
		}
	}
	ext := strings.ToLower(filepath.Ext(*outputFile))
	if ext != ".png" && ext != rasterimage.Extension {
		return fmt.Errorf("%w: %q", rasterimage.ErrUnknownFormat, ext)
	}

	pack, err := loadPack()
	if err != nil {
		return fmt.Errorf("while loading scene: %w", err)
	}

	sc := pack.Scene
	if *maxDepth >= 0 {
		sc, err = sc.WithMaxDepth(*maxDepth)
		if err != nil {
			return err
		}
	}

	w, h := pack.Width, pack.Height
	if *width > 0 {
		w = *width
	}
	if *height > 0 {
		h = *height
	}
	if err := rasterimage.CheckSize(w, h); err != nil {
		return err
	}

	var cache *rendercache.Cache
	var fp rendercache.Fingerprint
	if *cacheDir != "" {
		cache, err = rendercache.Open(*cacheDir, *clearCache)
		if err != nil {
			return fmt.Errorf("while opening render cache: %w", err)
		}
		defer cache.Close()

		fp, err = rendercache.ComputeFingerprint(pack.Description, w, h, sc.MaxDepth())
		if err != nil {
			return fmt.Errorf("while fingerprinting scene: %w", err)
		}
	}

	var im *rasterimage.Image
	if cache != nil {
		cached, found, err := cache.Get(fp)
		if err != nil {
			glog.Warningf("Ignoring cache read error: %v", err)
		} else if found {
			glog.Infof("Using cached render %s", fp)
			im = cached
		}
	}

	if im == nil {
		im = rasterimage.New(w, h)

		progress := func(cur, tot int) {}
		if term.IsTerminal(int(os.Stderr.Fd())) {
			progress = func(cur, tot int) {
				fmt.Fprintf(os.Stderr, "\r%d/%d %d%%", cur, tot, 100*cur/tot)
			}
		}

		r := render.New(sc, &render.Options{
			Workers:  *workers,
			Progress: progress,
		})
		st, err := r.Render(ctx, im)
		if term.IsTerminal(int(os.Stderr.Fd())) {
			fmt.Fprintf(os.Stderr, "\n")
		}
		if err != nil {
			return fmt.Errorf("while rendering %s: %w", pack.Name, err)
		}
		glog.Infof("Rendered %s at %dx%d in %v (%d rays, depth %d)", pack.Name, w, h, st.Elapsed, st.Total(), st.Depth)

		if cache != nil {
			if _, err := cache.Put(fp, im); err != nil {
				glog.Warningf("Ignoring cache write error: %v", err)
			}
		}
	}

	if err := rasterimage.WriteFile(im, *outputFile, *overwrite); err != nil {
		return fmt.Errorf("while writing output: %w", err)
	}

	if *uploadBucket != "" {
		if err := upload(ctx, *uploadBucket, *outputFile); err != nil {
			return fmt.Errorf("while uploading output: %w", err)
		}
	}

	return nil
}

// upload copies the file at name into bucket under a fresh render ID.
func upload(ctx context.Context, bucket, name string) error {
	gcs, err := storage.NewClient(ctx, googleopt.WithGRPCConnectionPool(1))
	if err != nil {
		return fmt.Errorf("while creating GCS client: %w", err)
	}
	defer gcs.Close()

	in, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("while opening %s: %w", name, err)
	}
	defer in.Close()

	objectName := uuid.New().String() + filepath.Ext(name)
	w := gcs.Bucket(bucket).Object(objectName).NewWriter(ctx)
	if filepath.Ext(name) == ".png" {
		w.ContentType = "image/png"
	} else {
		w.ContentType = "application/octet-stream"
	}

	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		return fmt.Errorf("while writing object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("while closing object writer: %w", err)
	}

	glog.Infof("Uploaded gs://%s/%s", bucket, objectName)
	return nil
}
