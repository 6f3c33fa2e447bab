package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tradecraft-foods/reconcile-cli/internal/model"
	"github.com/tradecraft-foods/reconcile-cli/internal/store"
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Inspect and decide queued review items",
	Long:  "Commands for listing, viewing, approving, and ignoring review items produced by ingestion.",
}

// -- reviews list --

var reviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		status, _ := cmd.Flags().GetString("status")
		typ, _ := cmd.Flags().GetString("type")
		search, _ := cmd.Flags().GetString("search")
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		sourceFile, _ := cmd.Flags().GetString("source-file")
		limit, _ := cmd.Flags().GetInt("limit")

		items, err := e.Reviews.List(ctx, store.ReviewFilter{
			Status:     model.ReviewStatus(status),
			Type:       model.EntityType(typ),
			Search:     search,
			MinScore:   minScore,
			SourceFile: sourceFile,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "reviews list")
		}

		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No review items found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tNAME\tSCORE\tSTATUS\tSOURCE")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\t%s:%d\n",
				item.ID, item.Candidate.Type, item.Candidate.Name,
				item.TopScore, item.Status, item.SourceFile, item.RowIndex)
		}
		return w.Flush()
	},
}

// -- reviews show --

var reviewsShowCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show full details of a review item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		item, err := e.Reviews.Get(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reviews show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	},
}

// -- reviews approve --

var reviewsApproveCmd = &cobra.Command{
	Use:   "approve <item-id>",
	Short: "Approve a review item as a match or a new entity",
	Long:  "With --entity, commits the row as a match to that entity (must be one of the proposals unless --override). Without --entity, creates a new canonical entity from the row.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		entityID, _ := cmd.Flags().GetString("entity")
		override, _ := cmd.Flags().GetBool("override")
		decidedBy, _ := cmd.Flags().GetString("by")

		dec := model.Decision{
			Kind:      model.DecisionApproveNew,
			DecidedBy: decidedBy,
		}
		if entityID != "" {
			dec.Kind = model.DecisionApproveMatch
			dec.EntityID = entityID
			dec.Override = override
		}

		item, err := e.Reviews.Apply(ctx, args[0], dec)
		if err != nil {
			return eris.Wrap(err, "reviews approve")
		}
		fmt.Printf("Item %s is now %s (entity %s).\n", item.ID, item.Status, item.ResolvedEntityID)
		return nil
	},
}

// -- reviews ignore --

var reviewsIgnoreCmd = &cobra.Command{
	Use:   "ignore <item-id>",
	Short: "Ignore a review item without committing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		decidedBy, _ := cmd.Flags().GetString("by")

		item, err := e.Reviews.Apply(ctx, args[0], model.Decision{
			Kind:      model.DecisionIgnore,
			DecidedBy: decidedBy,
		})
		if err != nil {
			return eris.Wrap(err, "reviews ignore")
		}
		fmt.Printf("Item %s is now %s.\n", item.ID, item.Status)
		return nil
	},
}

// -- reviews batch-approve --

var reviewsBatchApproveCmd = &cobra.Command{
	Use:   "batch-approve",
	Short: "Approve every pending item at or above a confidence score",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		minScore, _ := cmd.Flags().GetFloat64("min-score")
		decidedBy, _ := cmd.Flags().GetString("by")

		results, err := e.Reviews.BatchApprove(ctx, minScore, decidedBy)
		if err != nil {
			return eris.Wrap(err, "reviews batch-approve")
		}

		approved := 0
		for _, r := range results {
			if r.Err == "" {
				approved++
				continue
			}
			fmt.Fprintf(os.Stderr, "item %s: %s\n", r.ItemID, r.Err)
		}
		fmt.Printf("Approved %d of %d items.\n", approved, len(results))
		return nil
	},
}

func init() {
	reviewsListCmd.Flags().String("status", "", "filter by status (pending, approved_match, approved_new, ignored)")
	reviewsListCmd.Flags().String("type", "", "filter by entity type (product, ingredient)")
	reviewsListCmd.Flags().String("search", "", "text search over candidate fields")
	reviewsListCmd.Flags().Float64("min-score", 0, "minimum top match score")
	reviewsListCmd.Flags().String("source-file", "", "filter by source file")
	reviewsListCmd.Flags().Int("limit", 100, "maximum items to list")

	reviewsApproveCmd.Flags().String("entity", "", "entity id to match (omit to create a new entity)")
	reviewsApproveCmd.Flags().Bool("override", false, "allow matching an entity outside the proposed list")
	reviewsApproveCmd.Flags().String("by", "", "reviewer identifier")

	reviewsIgnoreCmd.Flags().String("by", "", "reviewer identifier")

	reviewsBatchApproveCmd.Flags().Float64("min-score", 90, "minimum top match score to approve")
	reviewsBatchApproveCmd.Flags().String("by", "", "reviewer identifier")

	reviewsCmd.AddCommand(reviewsListCmd, reviewsShowCmd, reviewsApproveCmd, reviewsIgnoreCmd, reviewsBatchApproveCmd)
	rootCmd.AddCommand(reviewsCmd)
}
