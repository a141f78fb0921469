package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/carsync/pkg/carsync"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

// emit writes v as indented JSON in --json mode and as YAML otherwise.
// Values are passed through JSON first so that both renderings use the
// json field names.
func (a *app) emit(cmd *cobra.Command, v any) error {
	out := cmd.OutOrStdout()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	if a.flags.jsonMode {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("decode output: %w", err)
	}
	y, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = out.Write(y)
	return err
}

// printResults prints one status line per sync result, or the results as
// JSON in --json mode.
func (a *app) printResults(cmd *cobra.Command, results []carsync.SyncResult) error {
	if a.flags.jsonMode {
		return a.emit(cmd, resultViews(results))
	}
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		dimColor.Fprintln(out, "no linked stores")
		return nil
	}
	for _, r := range results {
		printResult(out, r)
	}
	return nil
}

func printResult(out io.Writer, r carsync.SyncResult) {
	if r.Success {
		okColor.Fprintf(out, "ok      %s -> %s %s %s\n", r.Source, r.Target, r.Kind, r.RecordID)
		return
	}
	failColor.Fprintf(out, "failed  %s -> %s %s: %s\n", r.Source, r.Target, r.Kind, r.Error())
}

// resultView is the JSON rendering of a sync result.
type resultView struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Kind     string `json:"kind"`
	RecordID string `json:"record_id,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

func resultViews(results []carsync.SyncResult) []resultView {
	out := make([]resultView, len(results))
	for i, r := range results {
		out[i] = resultView{
			Source:   r.Source,
			Target:   r.Target,
			Kind:     string(r.Kind),
			RecordID: r.RecordID,
			Success:  r.Success,
			Error:    r.Error(),
		}
	}
	return out
}
