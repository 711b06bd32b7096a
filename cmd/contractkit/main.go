package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"

	"contractkit/internal/config"
	"contractkit/internal/contract"
	"contractkit/internal/executor"
	"contractkit/internal/parser"
	"contractkit/internal/reporter"
	"contractkit/internal/runner"
	"contractkit/internal/vars"
)

const defaultReports = "console,json,junit,html"

func main() {
	var (
		suitePath   = flag.String("suite", "", "Path to YAML/JSON test suite")
		outDir      = flag.String("out", "", "Output directory for artifacts (default $CONTRACTKIT_OUT or reports)")
		name        = flag.String("name", "", "Optional suite name override")
		baseURL     = flag.String("base-url", "", "Base URL override (default $CONTRACTKIT_BASE_URL, then the suite's baseUrl)")
		envPaths    = flag.String("env", "", "Comma-separated JSON variable files (e.g., env/dev.json,env/ci.json)")
		dotenvPaths = flag.String("vars-dotenv", "", "Comma-separated KEY=VALUE variable files")
		dotenv      = flag.String("dotenv", ".env", "Dotenv file with CONTRACTKIT_* settings, ignored when missing")
		reports     = flag.String("report", defaultReports, "Comma-separated sinks: console,json,junit,html,xlsx,coverage,redis")
		redisURL    = flag.String("redis-url", "", "Redis URL for the redis sink (default $CONTRACTKIT_REDIS_URL)")
		openapiPath = flag.String("openapi", "", "Path to OpenAPI (YAML/JSON) for contract checks & coverage")
		covMin      = flag.Float64("coverage-min", -1, "Fail if coverage percent < this threshold (requires OpenAPI)")
		parallel    = flag.Int("parallel", 0, "Number of cases to execute in parallel (default $CONTRACTKIT_PARALLEL or 1)")
		failFast    = flag.Bool("fail-fast", false, "Stop after first failing case (forces --parallel=1)")
		includeTags = flag.String("include-tags", "", "Comma-separated tags to include (OR semantics)")
		excludeTags = flag.String("exclude-tags", "", "Comma-separated tags to exclude (OR semantics)")
		logFormat   = flag.String("log-format", "", "Log format: text or json (default $CONTRACTKIT_LOG_FORMAT or text)")
		noColor     = flag.Bool("no-color", false, "Disable colored console output")
		verbose     = flag.Bool("v", false, "Verbose: debug logs and full failure details")
	)
	flag.Parse()

	if *suitePath == "" {
		fail("missing --suite")
	}

	cfg, err := config.NewConfig(*dotenv)
	if err != nil {
		fail("config: %v", err)
	}
	if err := cfg.SetLogFormat(*logFormat); err != nil {
		fail("config: %v", err)
	}
	if *outDir != "" {
		cfg.OutDir = *outDir
	}
	if *parallel > 0 {
		cfg.Parallel = *parallel
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *redisURL != "" {
		cfg.RedisURL = *redisURL
	}
	logger := newLogger(cfg.LogFormat, *verbose)
	slog.SetDefault(logger)

	suite, err := parser.New().ParseFile(*suitePath)
	if err != nil {
		fail("parse: %v", err)
	}
	if *name != "" {
		suite.Name = *name
	}

	baseVars, err := vars.LoadJSONFiles(splitCSV(*envPaths))
	if err != nil {
		fail("load env: %v", err)
	}
	dotVars, err := vars.LoadDotenv(splitCSV(*dotenvPaths))
	if err != nil {
		fail("load dotenv vars: %v", err)
	}
	for k, v := range dotVars {
		baseVars[k] = v
	}

	// OpenAPI: flag wins; else suite.openapi (relative to the suite file).
	suiteDir := filepath.Dir(*suitePath)
	openapiFile := *openapiPath
	if openapiFile == "" && suite.OpenAPI != "" {
		openapiFile = suite.OpenAPI
		if !filepath.IsAbs(openapiFile) {
			openapiFile = filepath.Join(suiteDir, openapiFile)
		}
	}
	var v *contract.Validator
	if openapiFile != "" {
		v, err = contract.LoadFromFile(openapiFile)
		if err != nil {
			fail("openapi load: %v", err)
		}
	}
	if *covMin >= 0 && v == nil {
		fail("--coverage-min requires an OpenAPI document")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, closeSinks, err := buildSinks(splitCSV(*reports), cfg, v, *verbose, *noColor)
	if err != nil {
		fail("%v", err)
	}
	defer closeSinks()

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		fail("mkdir out: %v", err)
	}
	rep := reporter.New(suite.Name, logger, sinks...)
	if err := rep.Start(ctx); err != nil {
		fail("reporter: %v", err)
	}

	r := runner.New(
		executor.New(executor.WithLogger(logger)),
		rep,
		runner.WithLogger(logger),
		runner.WithVars(baseVars),
		runner.WithBaseURL(cfg.BaseURL),
		runner.WithTimeout(cfg.Timeout),
		runner.WithSuiteDir(suiteDir),
		runner.WithContract(v),
		runner.WithParallel(cfg.Parallel),
		runner.WithFailFast(*failFast),
		runner.WithTags(splitCSV(*includeTags), splitCSV(*excludeTags)),
	)
	res, err := r.RunSuite(ctx, suite)
	if errors.Is(err, runner.ErrNoCases) {
		fail("no cases left after tag filtering")
	}
	if err != nil {
		fail("execute: %v", err)
	}

	// Flushing must not be cut short by an interrupt.
	if _, err := rep.End(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("report flush incomplete", "error", err)
	}
	if len(res.NotRun) > 0 {
		logger.Warn("cases not run", "cases", strings.Join(res.NotRun, ", "))
	}

	if v != nil && *covMin >= 0 {
		cov := v.Coverage()
		if cov.Percent+1e-9 < *covMin {
			fmt.Fprintf(os.Stderr, "coverage gate failed: got %.2f%%, need >= %.2f%%\n", cov.Percent, *covMin)
			fmt.Println("FAIL")
			os.Exit(1)
		}
	}

	if res.Passed {
		fmt.Println("PASS")
		return
	}
	fmt.Println("FAIL")
	os.Exit(1)
}

func buildSinks(kinds []string, cfg *config.Config, v *contract.Validator, verbose, noColor bool) ([]reporter.Sink, func(), error) {
	var (
		sinks   []reporter.Sink
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	out := func(file string) reporter.Target { return reporter.File(filepath.Join(cfg.OutDir, file)) }

	for _, k := range kinds {
		switch strings.ToLower(k) {
		case "console":
			sinks = append(sinks, reporter.NewConsoleSink(os.Stdout, verbose, noColor || color.NoColor))
		case "json":
			sinks = append(sinks, reporter.NewJSONSink(out("results.json")))
		case "junit":
			sinks = append(sinks, reporter.NewJUnitSink(out("junit.xml")))
		case "html":
			sinks = append(sinks, reporter.NewHTMLSink(out("report.html")))
		case "xlsx":
			sinks = append(sinks, reporter.NewXLSXSink(out("results.xlsx")))
		case "coverage":
			if v == nil {
				closeAll()
				return nil, nil, errors.New("coverage report requires an OpenAPI document")
			}
			sinks = append(sinks, reporter.NewCoverageSink(out("coverage.json"), v))
		case "redis":
			if cfg.RedisURL == "" {
				closeAll()
				return nil, nil, fmt.Errorf("redis report requires --redis-url or %s", config.EnvRedisURL)
			}
			opts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("redis url: %w", err)
			}
			client := redis.NewClient(opts)
			closers = append(closers, func() { client.Close() })
			sinks = append(sinks, reporter.NewRedisSink(client, "", 0))
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown report %q", k)
		}
	}
	return sinks, closeAll, nil
}

func newLogger(format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func fail(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", a...)
	os.Exit(2)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
