package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"classifyd/internal/classifier"
	"classifyd/internal/config"
	"classifyd/internal/imageio"
	"classifyd/internal/ledger"
	"classifyd/internal/memstat"
	"classifyd/internal/probe"
)

func buildProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "probe",
		Short:   "Create a pool, predict one image on every engine and report memory after each step",
		Example: "  classifyd probe --model TFModels/colors.json --pool-size 4 --image TestImages/TestImage.png",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			var cfg config.Config
			cfg.ModelPath, _ = f.GetString("model")
			cfg.ModelsDir, _ = f.GetString("models-dir")
			cfg.ModelName, _ = f.GetString("model-name")
			cfg.PoolSize, _ = f.GetInt("pool-size")
			cfg.Backend, _ = f.GetString("backend")
			cfg.ORTLibrary, _ = f.GetString("ort-library")
			cfg.LogLevel, _ = f.GetString("log-level")
			cfg.LogFormat = "console"
			if err := cfg.Validate(); err != nil {
				return exitCodeError{code: 2, err: err}
			}
			imagePath, _ := f.GetString("image")
			passes, _ := f.GetInt("passes")
			record, _ := f.GetString("record")
			asJSON, _ := f.GetBool("json")

			log := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			pcfg, err := poolConfig(cfg, &log)
			if err != nil {
				return err
			}
			img, err := imageio.LoadFile(imagePath, "")
			if err != nil {
				return err
			}
			r, err := probe.Run(cmd.Context(), pcfg, img, probe.Options{Passes: passes, Logger: &log})
			if err != nil {
				return err
			}
			if record != "" {
				l, err := ledger.Open(record)
				if err != nil {
					return err
				}
				defer l.Close()
				if err := l.Record(cmd.Context(), r); err != nil {
					return err
				}
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(classifier.ProbeResponse(r))
			}
			printReport(cmd.OutOrStdout(), r)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("model", "", "Model artifact path")
	f.String("models-dir", "TFModels", "Directory holding model artifacts, used with --model-name")
	f.String("model-name", "", "Artifact file name inside --models-dir")
	f.Int("pool-size", 1, "Number of engine instances")
	f.String("backend", "", "Inference backend: centroid|onnx (default: from model extension)")
	f.String("ort-library", envStr("ONNXRUNTIME_LIB", ""), "Path to the onnxruntime shared library")
	f.String("image", "TestImages/TestImage.png", "Image predicted on every engine")
	f.Int("passes", 2, "Predictions per engine")
	f.String("record", "", "SQLite file to append the run to")
	f.Bool("json", false, "Print the report as JSON")
	f.String("log-level", "warn", "Log level: debug|info|warn|error")
	return cmd
}

func printReport(w io.Writer, r *probe.Report) {
	for _, s := range r.Steps {
		mem := memstat.GB(s.Memory.Bytes())
		switch s.Phase {
		case "baseline":
			fmt.Fprintf(w, "Memory before loading engines: %s\n", mem)
		case "load":
			fmt.Fprintf(w, "Memory after loading engine %d: %s\n", s.Handle, mem)
		case "create":
			fmt.Fprintf(w, "Memory after loading %d engines: %s\n", r.PoolSize, mem)
		default:
			fmt.Fprintf(w, "Memory after calling Predict of engine %d (pass %d): %s\n", s.Handle, s.Pass, mem)
		}
	}
	for _, g := range r.Handles {
		fmt.Fprintf(w, "engine %d: first call %+d bytes, later calls %+d bytes\n", g.Handle, g.FirstCall, g.LaterCalls)
	}
	if r.RepeatedGrowth {
		fmt.Fprintln(w, "WARNING: memory kept growing after the first prediction")
	}
	fmt.Fprintln(w, r.Summary())
}
