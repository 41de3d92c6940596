package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"relayd/pkg/types"
)

func newModelsCmd(a *app) *cobra.Command {
	var asJSON bool
	var modelsDir, manifest string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models relayd would serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelsDir != "" {
				a.cfg.ModelsDir = modelsDir
			}
			if manifest != "" {
				a.cfg.Manifest = manifest
			}
			descs, _, err := discover(a.cfg, a.log)
			if err != nil {
				return err
			}
			rows := make([]modelRow, 0, len(descs))
			for _, d := range descs {
				rows = append(rows, rowFor(d))
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return printModels(a.out, rows)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().StringVar(&modelsDir, "models-dir", "", "Directory to scan for *.gguf model files")
	cmd.Flags().StringVar(&manifest, "manifest", "", "Manifest declaring remote backends and extra models")
	return cmd
}

type modelRow struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Source   string   `json:"source"`
	Quant    string   `json:"quant,omitempty"`
	Context  int      `json:"context,omitempty"`
	Size     int64    `json:"size_bytes,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Provider string   `json:"provider,omitempty"`
}

func rowFor(d types.Descriptor) modelRow {
	r := modelRow{ID: d.ID, Quant: d.Quant, Context: d.Context, Size: d.SizeBytes, Tags: d.Tags, Provider: d.Provider}
	switch k := d.Kind.(type) {
	case types.LocalKind:
		r.Kind = string(k.Format)
		r.Source = k.ModelRef
	case types.RemoteKind:
		r.Kind = "remote"
		r.Source = k.BackendRef + "/" + k.RemoteModelRef
	}
	return r
}

func printModels(w io.Writer, rows []modelRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tQUANT\tCONTEXT\tSOURCE")
	for _, r := range rows {
		ctx := "-"
		if r.Context > 0 {
			ctx = fmt.Sprint(r.Context)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.Quant, ctx, r.Source)
	}
	return tw.Flush()
}
