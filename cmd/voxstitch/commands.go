package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
	"github.com/custodia-labs/voxstitch/internal/watch"
)

var importCmd = &cobra.Command{
	Use:   "import <export-file-or-bundle>",
	Short: "Import a chat export with optional media attachments",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var detectCmd = &cobra.Command{
	Use:   "detect <export-file>",
	Short: "Report which platform produced an export",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List imported conversations",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var searchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Search imported messages for a keyword",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show conversation statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var getCmd = &cobra.Command{
	Use:   "get <record-id>",
	Short: "Show the latest version of a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var historyCmd = &cobra.Command{
	Use:   "history <record-id>",
	Short: "Show every stored version of a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var (
	userFlag     string
	platformFlag string
	attachFlags  []string
	pageFlag     int
	perPageFlag  int
	limitFlag    int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "local", "User that owns imported records")

	importCmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Declared platform (skips detection)")
	importCmd.Flags().StringArrayVarP(&attachFlags, "attach", "a", nil, "Media file to attach (repeatable)")

	detectCmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Declared platform to verify")

	listCmd.Flags().StringVarP(&platformFlag, "platform", "p", "", "Only list records from this platform")
	listCmd.Flags().IntVar(&pageFlag, "page", 1, "Page number")
	listCmd.Flags().IntVar(&perPageFlag, "per-page", 10, "Records per page")

	searchCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Maximum number of hits")

	rootCmd.AddCommand(importCmd, detectCmd, listCmd, searchCmd, statsCmd, getCmd, historyCmd, serveCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(args[0], platformFlag, attachFlags)
	if err != nil {
		return err
	}

	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.importer.SubmitImport(cmd.Context(), userFlag, req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runDetect(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	return printJSON(cmd.OutOrStdout(), a.importer.Detect(content, domain.ParsePlatform(platformFlag)))
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	page, err := a.chats.List(cmd.Context(), userFlag, domain.ListOptions{
		Platform: domain.ParsePlatform(platformFlag),
		Page:     pageFlag,
		PerPage:  perPageFlag,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), page)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	hits, err := a.chats.Search(cmd.Context(), userFlag, args[0], limitFlag)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), hits)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.chats.Stats(cmd.Context(), userFlag)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	record, err := a.chats.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), record)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	versions, err := a.chats.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), versions)
}

// buildRequest reads an export (or an inbox-style bundle directory) and
// any extra attachments into an import request.
func buildRequest(path, platform string, attachments []string) (domain.ImportRequest, error) {
	req, err := watch.LoadRequest(path)
	if err != nil {
		return domain.ImportRequest{}, err
	}
	if platform != "" {
		req.DeclaredPlatform = domain.ParsePlatform(platform)
	}

	for _, p := range attachments {
		data, err := os.ReadFile(p)
		if err != nil {
			return domain.ImportRequest{}, fmt.Errorf("attachment %s: %w", p, err)
		}
		req.Attachments = append(req.Attachments, domain.RawFile{
			Name:     filepath.Base(p),
			MimeType: mimetype.Detect(data).String(),
			Data:     data,
		})
	}
	return req, nil
}
