package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-discovery/internal/bulk"
	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

type gatewayFlags struct {
	proxies       []string
	authorization string
}

func (g *gatewayFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&g.proxies, "proxy", nil, "forwarding gateway URL (repeatable)")
	cmd.Flags().StringVar(&g.authorization, "authorization", "", "token passed to every gateway")
}

// gateways distinguishes "no --proxy flag" from "--proxy given but empty".
func (g *gatewayFlags) gateways(cmd *cobra.Command) bulk.Gateways {
	raw := g.proxies
	if cmd.Flags().Changed("proxy") && raw == nil {
		raw = []string{}
	}
	return bulk.NewGateways(raw, g.authorization)
}

func newExportCmd() *cobra.Command {
	var (
		targetDir string
		format    string
		gw        gatewayFlags
	)
	cmd := &cobra.Command{
		Use:   "export <task-id>",
		Short: "Exports a task's articles as Markdown or PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.Export(cmd.Context(), bulk.ExportRequest{
				TaskID:    args[0],
				TargetDir: targetDir,
				Format:    bulk.Format(format),
				Gateways:  gw.gateways(cmd),
			})
			if errors.Is(err, discovery.ErrNothingToExport) {
				appInstance.Logger().Warn("no articles to export", zap.String("task_id", args[0]))
				return nil
			}
			if err != nil {
				return fmt.Errorf("export task %s: %w", args[0], err)
			}
			return writeJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&targetDir, "target-dir", "", "directory the export folder is created in")
	cmd.Flags().StringVar(&format, "format", string(bulk.FormatMarkdown), "markdown or pdf")
	_ = cmd.MarkFlagRequired("target-dir")
	gw.register(cmd)
	return cmd
}

func newPrefetchCmd() *cobra.Command {
	var gw gatewayFlags
	cmd := &cobra.Command{
		Use:   "prefetch <task-id>",
		Short: "Caches a task's article pages and images without writing files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := appInstance.Prefetch(cmd.Context(), bulk.PrefetchRequest{
				TaskID:   args[0],
				Gateways: gw.gateways(cmd),
			})
			if err != nil {
				return fmt.Errorf("prefetch task %s: %w", args[0], err)
			}
			return writeJSON(cmd, stats)
		},
	}
	gw.register(cmd)
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
