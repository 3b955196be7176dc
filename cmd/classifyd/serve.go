package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"classifyd/internal/backend"
	"classifyd/internal/classifier"
	"classifyd/internal/config"
	"classifyd/internal/httpapi"
	"classifyd/internal/ledger"
	"classifyd/internal/pool"
	"classifyd/internal/registry"
)

func buildServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Load the model into a pool of engines and serve the HTTP API",
		Example: "  classifyd serve --model TFModels/colors.json --pool-size 4\n  classifyd serve --config classifyd.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd)
			if err != nil {
				return exitCodeError{code: 2, err: err}
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	f := cmd.Flags()
	f.String("config", envStr("CLASSIFYD_CONFIG", ""), "Config file (.yaml, .json or .toml)")
	f.String("addr", envStr("CLASSIFYD_ADDR", ":8080"), "HTTP listen address")
	f.String("model", "", "Model artifact path")
	f.String("models-dir", "TFModels", "Directory holding model artifacts, used with --model-name")
	f.String("model-name", "", "Artifact file name inside --models-dir")
	f.Int("pool-size", 1, "Number of engine instances")
	f.String("backend", "", "Inference backend: centroid|onnx (default: from model extension)")
	f.String("acquire-mode", "nonblocking", "Behaviour when all engines are busy: nonblocking|blocking")
	f.Duration("acquire-timeout", 30*time.Second, "Maximum wait for an engine in blocking mode")
	f.Duration("drain-timeout", 5*time.Second, "Maximum wait for held engines on shutdown")
	f.String("test-image", "TestImages/TestImage.png", "Image used by GET /classifyimage")
	f.String("warmup-image", "", "Image predicted on every engine before serving")
	f.String("log-level", envStr("CLASSIFYD_LOG", "info"), "Log level: debug|info|warn|error")
	f.String("log-format", "json", "Log format: json|console")
	f.String("cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	f.Int64("max-body-bytes", 10<<20, "Maximum upload size for /predict")
	f.Int64("request-timeout", 0, "Per-request timeout in seconds (0 disables)")
	f.String("ort-library", envStr("ONNXRUNTIME_LIB", ""), "Path to the onnxruntime shared library")
	f.String("probe-ledger", "", "SQLite file recording /classifyimage runs")
	return cmd
}

// loadServeConfig reads --config (if any) and overlays flags. Flags set on the
// command line always win; flag defaults only fill fields the file left empty.
func loadServeConfig(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()
	var cfg config.Config
	if path, _ := f.GetString("config"); path != "" {
		c, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	str := func(name string, dst *string) {
		if v, _ := f.GetString(name); f.Changed(name) || *dst == "" {
			*dst = v
		}
	}
	str("addr", &cfg.Addr)
	str("model", &cfg.ModelPath)
	str("models-dir", &cfg.ModelsDir)
	str("model-name", &cfg.ModelName)
	str("backend", &cfg.Backend)
	str("acquire-mode", &cfg.AcquireMode)
	str("test-image", &cfg.TestImage)
	str("warmup-image", &cfg.WarmupImage)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("ort-library", &cfg.ORTLibrary)
	str("probe-ledger", &cfg.ProbeLedger)
	if v, _ := f.GetInt("pool-size"); f.Changed("pool-size") || cfg.PoolSize == 0 {
		cfg.PoolSize = v
	}
	if v, _ := f.GetDuration("acquire-timeout"); f.Changed("acquire-timeout") || cfg.AcquireTimeoutMS == 0 {
		cfg.AcquireTimeoutMS = int(v.Milliseconds())
	}
	if v, _ := f.GetDuration("drain-timeout"); f.Changed("drain-timeout") || cfg.DrainTimeoutMS == 0 {
		cfg.DrainTimeoutMS = int(v.Milliseconds())
	}
	if v, _ := f.GetString("cors-origins"); f.Changed("cors-origins") || len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v, _ := f.GetInt64("max-body-bytes"); f.Changed("max-body-bytes") || cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = v
	}
	if v, _ := f.GetInt64("request-timeout"); f.Changed("request-timeout") || cfg.RequestTimeoutS == 0 {
		cfg.RequestTimeoutS = v
	}
	return cfg, cfg.Validate()
}

// poolConfig turns service configuration into a pool configuration.
func poolConfig(cfg config.Config, log *zerolog.Logger) (pool.Config, error) {
	modelPath, err := registry.Resolve(cfg.ModelPath, cfg.ModelsDir, cfg.ModelName)
	if err != nil {
		return pool.Config{}, err
	}
	name := cfg.Backend
	if name == "" {
		name = backend.ByExtension(modelPath)
	}
	b, err := backend.New(name, backend.Options{ORTLibrary: cfg.ORTLibrary})
	if err != nil {
		return pool.Config{}, err
	}
	return pool.Config{
		PoolSize:       cfg.PoolSize,
		ModelPath:      modelPath,
		Backend:        b,
		AcquireMode:    pool.AcquireMode(strings.ToLower(cfg.AcquireMode)),
		AcquireTimeout: time.Duration(cfg.AcquireTimeoutMS) * time.Millisecond,
		DrainTimeout:   time.Duration(cfg.DrainTimeoutMS) * time.Millisecond,
		Logger:         log,
	}, nil
}

func serve(ctx context.Context, cfg config.Config, logOut io.Writer) error {
	log := newLogger(cfg.LogLevel, cfg.LogFormat, logOut)
	pcfg, err := poolConfig(cfg, &log)
	if err != nil {
		return err
	}

	var led *ledger.Ledger
	if cfg.ProbeLedger != "" {
		if led, err = ledger.Open(cfg.ProbeLedger); err != nil {
			return err
		}
		defer led.Close()
	}

	svc, err := classifier.New(ctx, classifier.Options{
		Pool:        pcfg,
		WarmupImage: cfg.WarmupImage,
		TestImage:   cfg.TestImage,
		Ledger:      led,
		Logger:      &log,
	})
	if err != nil {
		log.Error().Err(err).Str("model", pcfg.ModelPath).Msg("failed to create engine pool")
		return err
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetRequestTimeoutSeconds(cfg.RequestTimeoutS)
	if len(cfg.CORSOrigins) > 0 {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins, []string{"GET", "POST", "OPTIONS"}, []string{"Content-Type", "X-Log-Level"})
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(svc), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("model", pcfg.ModelPath).Int("pool_size", svc.Pool().Size()).Msg("classifyd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		_ = svc.Close()
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return svc.Close()
}
