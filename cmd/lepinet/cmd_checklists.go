package main

import (
	"github.com/spf13/cobra"

	"github.com/nhle/lepinet/internal/app"
	"github.com/nhle/lepinet/internal/auth"
	"github.com/nhle/lepinet/internal/checklist"
)

var checklistsCmd = &cobra.Command{
	Use:   "checklists",
	Short: "List drafts and submitted checklists together",
	RunE:  withApp(runChecklists),
}

var viewCmd = &cobra.Command{
	Use:   "view <checklist-id>",
	Short: "Show a submitted checklist",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runView),
}

var (
	checklistsFilter string
	checklistsSearch string
)

func init() {
	checklistsCmd.Flags().StringVar(&checklistsFilter, "filter", "all", "all, draft or submitted")
	checklistsCmd.Flags().StringVar(&checklistsSearch, "search", "", "only names containing this text")
}

func runChecklists(cmd *cobra.Command, args []string, a *app.App) error {
	filter, err := checklist.ParseFilter(checklistsFilter)
	if err != nil {
		return err
	}
	items, err := a.Checklists.Overview(cmd.Context(), a.Owner(), checklist.OverviewQuery{
		Filter: filter,
		Search: checklistsSearch,
	})
	if err != nil {
		return err
	}
	printItems(cmd.OutOrStdout(), items)
	return nil
}

func runView(cmd *cobra.Command, args []string, a *app.App) error {
	owner := a.Auth.Owner()
	if owner == "" {
		return auth.ErrNotSignedIn
	}
	s, err := a.Checklists.View(cmd.Context(), args[0], owner)
	if err != nil {
		return err
	}
	printSubmission(cmd.OutOrStdout(), s)
	return nil
}
