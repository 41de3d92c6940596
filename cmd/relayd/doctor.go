package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"relayd/internal/manager"
)

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check runtimes, models and backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool := manager.NewWithConfig(manager.ManagerConfig{Llama: manager.LlamaConfig{Bin: a.cfg.Llama.Bin}})
			defer pool.Close()
			rep := pool.SanityCheck()
			fmt.Fprintf(a.out, "in-process llama.cpp: %v\n", rep.InProcessBuilt)
			if rep.LlamaFound {
				fmt.Fprintf(a.out, "llama-server:         %s\n", rep.LlamaPath)
			} else {
				fmt.Fprintf(a.out, "llama-server:         missing (%s)\n", rep.Error)
			}

			descs, backends, err := discover(a.cfg, a.log)
			if err != nil {
				fmt.Fprintf(a.out, "models:               error: %v\n", err)
				return fmt.Errorf("doctor: model discovery failed")
			}
			fmt.Fprintf(a.out, "models:               %d\n", len(descs))
			fmt.Fprintf(a.out, "backends:             %d\n", len(backends))
			if !rep.OK() {
				return fmt.Errorf("doctor: no gguf runtime available")
			}
			return nil
		},
	}
}
