package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"sync"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/csv"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/thanos-io/objstore/client"
	"gopkg.in/alecthomas/kingpin.v2"

	"fpetkovski/parquet-scan/config"
	"fpetkovski/parquet-scan/scanner"
)

type Options struct {
	// Path to the yaml scan configuration.
	ConfigFile string
	// Address to expose metrics on. Metrics are not exposed if empty.
	MetricsAddr string
	// Hide the progress spinner.
	Quiet bool
	Debug bool
}

func main() {
	app := kingpin.New("parquet-scan", "Scan partitioned parquet datasets in object storage and print them as CSV.")
	opts := Options{}
	if err := (&opts).BindFlags(app); err != nil {
		stdlog.Fatal(err)
	}

	logger := newLogger(opts.Debug)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, logger, opts); err != nil {
		level.Error(logger).Log("msg", "scan failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger log.Logger, opts Options) error {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if opts.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			level.Info(logger).Log("msg", "serving metrics", "addr", opts.MetricsAddr)
			if err := http.ListenAndServe(opts.MetricsAddr, nil); err != nil {
				level.Error(logger).Log("msg", "metrics server stopped", "err", err)
			}
		}()
	}

	bucketConfig, err := cfg.BucketConfig()
	if err != nil {
		return err
	}
	bucket, err := client.NewBucket(logger, bucketConfig, reg, "parquet-scan")
	if err != nil {
		return err
	}
	defer bucket.Close()

	ds, err := cfg.Dataset(bucket)
	if err != nil {
		return err
	}
	builder, err := scanner.NewBuilder(ctx, ds)
	if err != nil {
		return err
	}
	builder, err = cfg.Apply(builder, logger, reg)
	if err != nil {
		return err
	}
	s, err := builder.Finish()
	if err != nil {
		return err
	}

	level.Debug(logger).Log("msg", "starting scan", "filter", s.Options().Filter, "columns", len(s.Schema().Fields()))
	return write(ctx, s, opts.Quiet)
}

// write prints batches as they arrive. With more than one concurrent task
// batches of different tasks may be interleaved.
func write(ctx context.Context, s *scanner.Scanner, quiet bool) error {
	writer := csv.NewWriter(os.Stdout, s.Schema(), csv.WithHeader(true))

	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.Default(-1, "scanning rows")
	}

	var mu sync.Mutex
	err := s.Execute(ctx, func(_ int, batch arrow.Record) error {
		mu.Lock()
		defer mu.Unlock()
		if err := writer.Write(batch); err != nil {
			return err
		}
		if bar != nil {
			return bar.Add64(batch.NumRows())
		}
		return nil
	})
	if err != nil {
		return err
	}
	if bar != nil {
		if err := bar.Finish(); err != nil {
			return err
		}
	}
	return writer.Flush()
}

func newLogger(debug bool) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func (o *Options) BindFlags(app *kingpin.Application) error {
	app.Flag("config", "Path to the yaml scan configuration.").
		Required().StringVar(&o.ConfigFile)
	app.Flag("metrics-addr", "Address to expose metrics on.").
		Default("").StringVar(&o.MetricsAddr)
	app.Flag("quiet", "Hide the progress spinner.").BoolVar(&o.Quiet)
	app.Flag("debug", "Enable debug logging.").BoolVar(&o.Debug)

	_, err := app.Parse(os.Args[1:])
	if err != nil {
		return err
	}
	return nil
}
