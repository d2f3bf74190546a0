package main

import (
	"github.com/spf13/cobra"

	"github.com/papertrail-ai/papertrail/backend/internal/bootstrap"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild an owner's entity graph",
	Args:  cobra.NoArgs,
	RunE:  runRebuild,
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print an owner's graph as JSON",
	Args:  cobra.NoArgs,
	RunE:  runGraph,
}

var dossierCmd = &cobra.Command{
	Use:   "dossier",
	Short: "Print the dossier of one entity as JSON",
	Args:  cobra.NoArgs,
	RunE:  runDossier,
}

var (
	ownerID string
	nodeID  string
)

func init() {
	for _, c := range []*cobra.Command{rebuildCmd, graphCmd, dossierCmd} {
		c.Flags().StringVarP(&ownerID, "owner", "o", "", "Owner whose graph to use")
		_ = c.MarkFlagRequired("owner")
		rootCmd.AddCommand(c)
	}
	dossierCmd.Flags().StringVarP(&nodeID, "node", "n", "", "Node id of the entity")
	_ = dossierCmd.MarkFlagRequired("node")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	deps, err := bootstrap.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	stats, err := deps.Graph.RebuildGraph(cmd.Context(), ownerID)
	if err != nil {
		return err
	}
	logger.Info("[Graph] Rebuild finished", "owner", ownerID, "duration", stats.Duration)
	return printJSON(cmd.OutOrStdout(), stats)
}

func runGraph(cmd *cobra.Command, args []string) error {
	deps, err := bootstrap.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	data, err := deps.Query.GetGraphData(cmd.Context(), ownerID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func runDossier(cmd *cobra.Command, args []string) error {
	deps, err := bootstrap.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer deps.Close()

	dossier, err := deps.Query.GetEntityDossier(cmd.Context(), ownerID, nodeID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), dossier)
}
