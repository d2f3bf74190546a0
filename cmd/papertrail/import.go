package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/papertrail-ai/papertrail/backend/internal/bootstrap"
	"github.com/papertrail-ai/papertrail/backend/internal/util"
	"github.com/papertrail-ai/papertrail/backend/pkg/common"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
	"github.com/papertrail-ai/papertrail/backend/pkg/store/sqlite"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load documents and action items from a JSON file",
	Long: `Reads {"documents": [...], "action_items": [...]} and upserts the documents
into the local sqlite store. Documents without owner_id take --owner.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importOwner   string
	importRebuild bool
)

func init() {
	importCmd.Flags().StringVarP(&importOwner, "owner", "o", "", "Owner for documents that carry none")
	importCmd.Flags().BoolVar(&importRebuild, "rebuild", false, "Rebuild the graph of every imported owner")
	rootCmd.AddCommand(importCmd)
}

type importFile struct {
	Documents   []common.Document   `json:"documents"`
	ActionItems []common.ActionItem `json:"action_items"`
}

type importResult struct {
	Documents   int      `json:"documents"`
	ActionItems int      `json:"action_items"`
	Owners      []string `json:"owners"`
}

func readImportFile(path, defaultOwner string) (importFile, []string, error) {
	var in importFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return in, nil, err
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, nil, fmt.Errorf("decode %s: %w", path, err)
	}

	owners := map[string]struct{}{}
	docs := map[string]struct{}{}
	for i := range in.Documents {
		d := &in.Documents[i]
		if d.OwnerID == "" {
			d.OwnerID = defaultOwner
		}
		if d.ID == "" || d.OwnerID == "" {
			return in, nil, fmt.Errorf("document %d: id and owner_id are required", i)
		}
		owners[d.OwnerID] = struct{}{}
		docs[d.ID] = struct{}{}
	}
	for i, item := range in.ActionItems {
		if item.Type == "" {
			return in, nil, fmt.Errorf("action item %d: type is required", i)
		}
		if _, ok := docs[item.DocumentID]; !ok {
			return in, nil, fmt.Errorf("action item %d: unknown document %q", i, item.DocumentID)
		}
	}

	list := make([]string, 0, len(owners))
	for o := range owners {
		list = append(list, o)
	}
	sort.Strings(list)
	return in, list, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	if driver := util.GetEnvString("STORE_DRIVER", bootstrap.DriverPostgres); driver != bootstrap.DriverSQLite {
		return fmt.Errorf("import writes to the local sqlite store, STORE_DRIVER is %q", driver)
	}

	in, owners, err := readImportFile(args[0], importOwner)
	if err != nil {
		return err
	}

	s, err := sqlite.NewStore(util.GetEnvString("SQLITE_PATH", "./papertrail.db"))
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	for _, d := range in.Documents {
		if err := s.SaveDocument(ctx, d); err != nil {
			_ = s.Close()
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
	}
	for _, item := range in.ActionItems {
		if _, err := s.SaveActionItem(ctx, item); err != nil {
			_ = s.Close()
			return fmt.Errorf("action item for %s: %w", item.DocumentID, err)
		}
	}
	if err := s.Close(); err != nil {
		return err
	}
	logger.Info("[Import] Stored records", "documents", len(in.Documents), "action_items", len(in.ActionItems))

	if importRebuild {
		deps, err := bootstrap.Open(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()
		for _, owner := range owners {
			if _, err := deps.Graph.RebuildGraph(ctx, owner); err != nil {
				return fmt.Errorf("rebuild %s: %w", owner, err)
			}
		}
	}

	return printJSON(cmd.OutOrStdout(), importResult{
		Documents:   len(in.Documents),
		ActionItems: len(in.ActionItems),
		Owners:      owners,
	})
}
