package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"multiload/internal/chunk"
	"multiload/internal/config"
	"multiload/internal/keyutil"
	"multiload/internal/loader"
	"multiload/internal/metrics"
	"multiload/internal/metrics/datadog"
	"multiload/internal/metrics/prompush"
	"multiload/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "multiload/internal/storage/all"
)

// main is the entry point for the multiload binary. It loads the job config,
// reads the key list, optionally initializes a metrics backend, and runs the
// chunked load, writing one JSON object per distinct row.
func main() {
	var (
		cfgPath           string
		keysPath          string
		outPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		datadogAddrFlg    string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/sample.json", "load config JSON path")
	flag.StringVar(&keysPath, "keys", "-", "key list path, one key per line (- for stdin; blank line keeps an absent slot)")
	flag.StringVar(&outPath, "out", "-", "output path for JSON-lines rows (- for stdout)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none; default none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&datadogAddrFlg, "datadog-addr", "", "DogStatsD address (overrides env DD_AGENT_ADDR)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	spec, err := config.ReadFile(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.Validate(spec)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit.
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	// Decide metrics backend: flag → env → default.
	backendName := resolveBackendName(metricsBackendFlg, os.Getenv("METRICS_BACKEND"))
	switch backendName {
	case "pushgateway":
		gwURL := pushGatewayURLFlg
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		jobName := spec.Job
		if jobName == "" {
			jobName = "multiload_job"
		}

		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
		} else {
			log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
			}()
		}

	case "datadog":
		addr := datadogAddrFlg
		if addr == "" {
			addr = os.Getenv("DD_AGENT_ADDR")
		}

		b, err := datadog.NewBackend(datadog.Config{Addr: addr, Namespace: "multiload"})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v, addr=%v", backendName, addr)
			metrics.SetBackend(b)
			defer func() {
				if err := metrics.Flush(); err != nil {
					log.Printf("metrics: flush error: %v", err)
				}
				b.Close()
			}()
		}

	case "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	keys, err := readKeys(keysPath, len(spec.Fetch.KeyColumns))
	if err != nil {
		fatalf("%v", err)
	}
	if len(keys) == 0 {
		log.Printf("no keys to load; exiting")
		return
	}

	ctx := context.Background()
	start := time.Now()

	if *verbose {
		log.Printf("load: job=%s storage=%s table=%s keys=%d chunk_size=%d",
			spec.Job, spec.Fetch.Kind, spec.Fetch.Table, len(keys), spec.Runtime.EffectiveChunkSize())
	}

	out, report, err := loader.Run(ctx, spec, keys)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := writeRows(outPath, out); err != nil {
		fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s: chunks=%d fetched=%d skipped=%d rows=%d distinct=%d",
			time.Since(start).Truncate(time.Millisecond),
			report.ChunksStarted, report.ChunksFetched, report.ChunksSkipped,
			report.RowsFetched, report.RowsDistinct)
	}
}

// resolveBackendName picks the metrics backend: the flag wins when set,
// then the METRICS_BACKEND environment variable, then "none".
func resolveBackendName(flagVal, envVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if envVal != "" {
		return envVal
	}
	return "none"
}

// readKeys reads one key per line from path (- for stdin). Blank lines keep
// an absent slot at that position. When the job uses a composite key,
// fields are tab-separated and each line must carry keyColumns fields.
func readKeys(path string, keyColumns int) ([]chunk.Key, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open keys: %w", err)
		}
		defer f.Close()
		r = f
	}

	var keys []chunk.Key
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			keys = append(keys, chunk.Absent)
			continue
		}
		if keyColumns <= 1 {
			keys = append(keys, chunk.K(keyutil.Canonical(text)))
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != keyColumns {
			return nil, fmt.Errorf("keys line %d: got %d fields, want %d", line, len(fields), keyColumns)
		}
		tuple := make([]any, len(fields))
		for i, f := range fields {
			tuple[i] = keyutil.Canonical(f)
		}
		keys = append(keys, chunk.K(tuple))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read keys: %w", err)
	}
	return keys, nil
}

// writeRows emits one JSON object per distinct row, in first-seen order.
func writeRows(path string, out *chunk.RowSet) error {
	var w io.Writer
	if path == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, row := range out.Rows() {
		sr, ok := row.(storage.Row)
		if !ok {
			return fmt.Errorf("unexpected row type %T in result set", row)
		}
		if err := enc.Encode(sr.Map()); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
