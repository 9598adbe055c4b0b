// pinhole-server renders scenes on demand and serves them as PNG.
package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pinhole/healthz"
	"pinhole/httpmetrics"
	"pinhole/render"
	"pinhole/rendercache"
	"pinhole/renderserver"
	"pinhole/scenepack"

	"cloud.google.com/go/profiler"
	"contrib.go.opencensus.io/exporter/stackdriver"
	cloudmetrics "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	cloudtrace "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/golang/glog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	listen      = flag.String("listen", "0.0.0.0:8080", "Where should we listen for incoming connections?")
	debugListen = flag.String("debug-listen", "127.0.0.1:8001", "Server address:port for debug endpoint.")

	sceneFiles = flag.String("scene-files", "", "Comma-separated JSON scene files to serve alongside the built-in scenes.")
	cacheDir   = flag.String("cache-dir", "", "If set, keep finished renders in a cache at this directory.")
	clearCache = flag.Bool("clear-cache", false, "Empty the cache directory at startup.")

	rendersPerSecond = flag.Float64("renders-per-second", 2, "Sustained rate at which renders may start.")
	burst            = flag.Int("burst", 4, "Renders that may start back-to-back before throttling.")
	queueWait        = flag.Duration("queue-wait", 10*time.Second, "How long a request may wait for a render slot before getting 429.")
	maxPixels        = flag.Int("max-pixels", 2048*2048, "Largest width*height a request may ask for.")
	maxDepthLimit    = flag.Int("max-depth-limit", 16, "Deepest reflection/refraction recursion a request may ask for.")
	workers          = flag.Int("workers", 0, "Rows rendered concurrently per request.  Zero means one per CPU.")

	enableProfiling = flag.Bool("enable-profiling", false, "Start the Cloud Profiler agent?")
	enableMetrics   = flag.Bool("enable-metrics", false, "Export OpenCensus metrics to Stackdriver?")

	monitoring           = flag.Bool("monitoring", false, "Enable OpenTelemetry trace and metric export?")
	monitoringProject    = flag.String("monitoring-project", "", "Override project used for monitoring integration.  If not specified, the project associated with Application Default Credentials is used.")
	monitoringTraceRatio = flag.Float64("monitoring-trace-ratio", 0.01, "What ratio of traces should be exported?")
)

func main() {
	flag.Parse()

	glog.CopyStandardLogTo("INFO")

	glog.Infof("flags:")
	flag.VisitAll(func(f *flag.Flag) {
		glog.Infof("%s: %q", f.Name, f.Value.String())
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cloud Profiler initialization, best done as early as possible.
	if *enableProfiling {
		if err := profiler.Start(profiler.Config{
			Service:        "pinhole-server",
			ServiceVersion: "0.0.1",
		}); err != nil {
			glog.Fatalf("Error initializing profiler: %v", err)
		}
	}

	if *monitoring {
		metricsOpts := []cloudmetrics.Option{}
		traceOpts := []cloudtrace.Option{}
		if *monitoringProject != "" {
			metricsOpts = append(metricsOpts, cloudmetrics.WithProjectID(*monitoringProject))
			traceOpts = append(traceOpts, cloudtrace.WithProjectID(*monitoringProject))
		}

		_, traceShutdown, err := cloudtrace.InstallNewPipeline(traceOpts, sdktrace.WithSampler(sdktrace.TraceIDRatioBased(*monitoringTraceRatio)))
		if err != nil {
			glog.Fatalf("Failed to install Cloud Trace OpenTelemetry trace pipeline: %v", err)
		}
		defer traceShutdown()

		pusher, err := cloudmetrics.InstallNewPipeline(metricsOpts)
		if err != nil {
			glog.Fatalf("Failed to install Cloud Metrics OpenTelemetry meter pipeline: %v", err)
		}
		defer pusher.Stop(ctx)
	}

	if *enableMetrics {
		exporter, err := stackdriver.NewExporter(stackdriver.Options{
			ProjectID:         *monitoringProject,
			MetricPrefix:      "pinhole",
			ReportingInterval: 60 * time.Second,
		})
		if err != nil {
			glog.Fatalf("Error initializing metrics: %v", err)
		}
		if err := exporter.StartMetricsExporter(); err != nil {
			glog.Fatalf("Error starting metrics exporter: %v", err)
		}
		defer exporter.Flush()
		defer exporter.StopMetricsExporter()
	}

	if err := render.RegisterViews(); err != nil {
		glog.Fatalf("Error registering render views: %v", err)
	}

	var extra []*scenepack.Pack
	for _, name := range strings.Split(*sceneFiles, ",") {
		if name == "" {
			continue
		}
		p, err := scenepack.Load(name)
		if err != nil {
			glog.Fatalf("Error loading scene file: %v", err)
		}
		glog.Infof("Loaded scene %q from %s", p.Name, name)
		extra = append(extra, p)
	}

	var cache *rendercache.Cache
	if *cacheDir != "" {
		var err error
		cache, err = rendercache.Open(*cacheDir, *clearCache)
		if err != nil {
			glog.Fatalf("Error opening render cache: %v", err)
		}
		defer cache.Close()
	}

	renderHandler, err := renderserver.NewHandler(renderserver.Config{
		RendersPerSecond: *rendersPerSecond,
		Burst:            *burst,
		QueueWait:        *queueWait,
		MaxPixels:        *maxPixels,
		MaxDepthLimit:    *maxDepthLimit,
		Workers:          *workers,
		Cache:            cache,
		Scenes:           extra,
	})
	if err != nil {
		glog.Fatalf("Error creating render handler: %v", err)
	}

	instrumented := httpmetrics.New("pinhole/render", renderHandler)
	if err := instrumented.RegisterMetrics(); err != nil {
		glog.Fatalf("Error registering http metrics: %v", err)
	}
	defer instrumented.UnregisterMetrics()

	serveMux := http.NewServeMux()
	serveMux.Handle("/render", instrumented)
	serveMux.HandleFunc("/scenes", renderHandler.ServeScenes)
	serveMux.Handle("/healthz", healthz.New())

	server := &http.Server{
		Addr:    *listen,
		Handler: serveMux,

		// Large renders take a while; the limiter's queue wait bounds how
		// long a request sits before rendering starts.
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	readiness := healthz.NewReadiness()

	debugServeMux := http.NewServeMux()
	debugServeMux.Handle("/healthz", healthz.New())
	debugServeMux.Handle("/readyz", readiness)
	debugServeMux.HandleFunc("/debug/pprof/", pprof.Index)
	debugServeMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	debugServeMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	debugServeMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	debugServeMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	debugServer := &http.Server{
		Addr:    *debugListen,
		Handler: debugServeMux,

		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("Debug server died: %v", err)
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("Error while serving http: %v", err)
		}
	}()
	readiness.SetReady(true)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	<-signalCh

	glog.Infof("Shutting down")
	readiness.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("Error shutting down server: %v", err)
	}
	debugServer.Close()

	glog.Flush()
}
