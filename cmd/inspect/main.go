package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thanos-io/objstore/client"
	"gopkg.in/alecthomas/kingpin.v2"

	"fpetkovski/parquet-scan/config"
	"fpetkovski/parquet-scan/expr"
)

type Options struct {
	ConfigFile string
	Object     string
}

// inspect prints the arrow schema and the row group statistics of a single
// parquet object, and whether the configured filter prunes each row group.
func main() {
	app := kingpin.New("parquet-inspect", "Print the schema and row group statistics of a parquet object.")
	opts := Options{}
	if err := (&opts).BindFlags(app); err != nil {
		stdlog.Fatal(err)
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if err := run(context.Background(), logger, opts); err != nil {
		stdlog.Fatalln(err.Error())
	}
}

func run(ctx context.Context, logger log.Logger, opts Options) error {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}
	filter, err := cfg.FilterExpression()
	if err != nil {
		return err
	}
	bucketConfig, err := cfg.BucketConfig()
	if err != nil {
		return err
	}
	bucket, err := client.NewBucket(logger, bucketConfig, prometheus.NewRegistry(), "parquet-inspect")
	if err != nil {
		return err
	}
	defer bucket.Close()

	ds, err := cfg.Dataset(bucket)
	if err != nil {
		return err
	}
	fragment, err := ds.Fragment(ctx, opts.Object)
	if err != nil {
		return err
	}
	partition := fragment.PartitionExpression()

	schema, err := fragment.PhysicalSchema()
	if err != nil {
		return err
	}
	fmt.Println(schema)
	if partition != nil {
		fmt.Println("partition:", partition)
	}

	statistics, err := fragment.RowGroupStatistics()
	if err != nil {
		return err
	}
	for i, stats := range statistics {
		var known []expr.Expression
		for _, e := range []expr.Expression{partition, stats} {
			if e != nil {
				known = append(known, e)
			}
		}
		pruned := len(known) > 0 && !expr.IsSatisfiable(filter.Assume(expr.And(known...)))
		fmt.Printf("row group %d: statistics=%v pruned=%t\n", i, stats, pruned)
	}
	return nil
}

func (o *Options) BindFlags(app *kingpin.Application) error {
	app.Flag("config", "Path to the yaml scan configuration.").
		Required().StringVar(&o.ConfigFile)
	app.Arg("object", "Name of the parquet object in the bucket.").
		Required().StringVar(&o.Object)

	_, err := app.Parse(os.Args[1:])
	if err != nil {
		return err
	}
	return nil
}
