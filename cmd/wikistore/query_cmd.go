package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"wikistore/internal/index"
	"wikistore/internal/model"
	"wikistore/internal/store"
)

func newGetCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <mediawiki-id|slug|store-id>",
		Short: "Fetch a page by MediaWiki id, slug, or store id (chunk.index)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStoreFromFlags(cmd, logger, store.Config{})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			ctx := context.Background()
			view, ok, err := resolveArg(ctx, s, args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("not found")
				return nil
			}
			printPage(view)
			return nil
		},
	}
	return cmd
}

func resolveArg(ctx context.Context, s *store.Store, arg string) (store.PageView, bool, error) {
	if storeID, err := model.ParseStorePageId(arg); err == nil {
		return s.GetPageByStoreID(ctx, storeID)
	}
	if mwID, err := strconv.ParseUint(arg, 10, 64); err == nil {
		return s.GetPageByMediaWikiID(ctx, mwID)
	}
	return s.GetPageBySlug(ctx, arg)
}

func printPage(view store.PageView) {
	fmt.Printf("store_id: %s\n", view.StorePageId)
	fmt.Printf("mediawiki_id: %d\n", view.Page.ID)
	fmt.Printf("ns: %d\n", view.Page.NsID)
	fmt.Printf("title: %s\n", view.Page.Title)
	if view.Page.Revision != nil {
		fmt.Printf("revision_id: %d\n", view.Page.Revision.ID)
		fmt.Printf("categories: %v\n", view.Page.Revision.Categories)
	}
}

func newSearchCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over page titles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			s, err := openStoreFromFlags(cmd, logger, store.Config{})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			rows, err := s.PageSearch(context.Background(), args[0], limit)
			if err != nil {
				return err
			}
			printRows(rows)
			return nil
		},
	}
	cmd.Flags().Int("limit", index.MaxQueryLimit, "maximum results")
	return cmd
}

func newCategoryCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category <slug>",
		Short: "List pages belonging to a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			after, _ := cmd.Flags().GetUint64("after")
			s, err := openStoreFromFlags(cmd, logger, store.Config{})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			rows, err := s.GetCategoryPages(context.Background(), args[0], after, limit)
			if err != nil {
				return err
			}
			printRows(rows)
			return nil
		},
	}
	cmd.Flags().Int("limit", index.MaxQueryLimit, "maximum results")
	cmd.Flags().Uint64("after", 0, "only return pages with a mediawiki id greater than this")
	return cmd
}

func printRows(rows []index.PageRow) {
	for _, r := range rows {
		fmt.Printf("%d\t%s\t%s\n", r.MediaWikiID, r.Slug, r.StorePageId)
	}
}
