package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/issuetracker/internal/issues"
	"github.com/joescharf/issuetracker/internal/models"
	"github.com/joescharf/issuetracker/internal/output"
)

var (
	issueTitle      string
	issueText       string
	issueCreatedBy  string
	issueAssignedTo string
	issueStatusText string
	issueOpen       string
	issueFilters    map[string]string
	issueJSON       bool
)

// issueFlagFields maps update flags to the payload fields they set.
var issueFlagFields = map[string]string{
	"title":       issues.FieldIssueTitle,
	"text":        issues.FieldIssueText,
	"created-by":  issues.FieldCreatedBy,
	"assigned-to": issues.FieldAssignedTo,
	"status":      issues.FieldStatusText,
	"open":        issues.FieldOpen,
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage a project's issues",
	Long:  "Search, create, update, and delete issues directly against the configured store.",
}

var issueListCmd = &cobra.Command{
	Use:     "list <project>",
	Aliases: []string{"ls"},
	Short:   "List a project's issues",
	Long: `List issues in a project, oldest first.

Filters are exact matches on issue fields, e.g.
  issuetracker issue list apitest --filter open=true --filter assigned_to=joe`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun(cmd.Context(), args[0])
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <project> <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(cmd.Context(), args[0], args[1])
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add <project>",
	Short: "Add a new issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(cmd.Context(), args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <project> <issue-id>",
	Short: "Update an issue",
	Long: `Update fields of an issue. Only flags given on the command line are sent.
An empty --assigned-to or --status clears that field; empty values for the
other fields are ignored. --open=true reopens; any other value closes.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := issues.Payload{}
		for flag, field := range issueFlagFields {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				p[field] = v
			}
		}
		return issueUpdateRun(cmd.Context(), args[0], args[1], p)
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <project> <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(cmd.Context(), args[0], args[1])
	},
}

func init() {
	issueListCmd.Flags().StringToStringVarP(&issueFilters, "filter", "f", nil, "Exact-match filter field=value (repeatable)")
	issueListCmd.Flags().BoolVar(&issueJSON, "json", false, "Print issues as JSON")
	issueShowCmd.Flags().BoolVar(&issueJSON, "json", false, "Print the issue as JSON")

	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueText, "text", "", "Issue text (required)")
	issueAddCmd.Flags().StringVar(&issueCreatedBy, "created-by", "", "Author (required)")
	issueAddCmd.Flags().StringVar(&issueAssignedTo, "assigned-to", "", "Assignee")
	issueAddCmd.Flags().StringVar(&issueStatusText, "status", "", "Free-form status text")
	_ = issueAddCmd.MarkFlagRequired("title")
	_ = issueAddCmd.MarkFlagRequired("text")
	_ = issueAddCmd.MarkFlagRequired("created-by")

	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueText, "text", "", "New text")
	issueUpdateCmd.Flags().StringVar(&issueCreatedBy, "created-by", "", "New author")
	issueUpdateCmd.Flags().StringVar(&issueAssignedTo, "assigned-to", "", "New assignee")
	issueUpdateCmd.Flags().StringVar(&issueStatusText, "status", "", "New status text")
	issueUpdateCmd.Flags().StringVar(&issueOpen, "open", "", `"true" to reopen, anything else closes`)

	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

func issueListRun(ctx context.Context, project string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	found, err := svc.Search(orBackground(ctx), project, issueFilters)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}

	if issueJSON {
		return ui.JSON(found)
	}

	if len(found) == 0 {
		ui.Info("No issues found in %s.", project)
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "State", "Status", "Assigned", "Created By", "Updated"})
	for _, issue := range found {
		_ = table.Append([]string{
			output.Cyan(issue.ID),
			output.Truncate(issue.IssueTitle, 40),
			output.OpenLabel(issue.Open),
			issue.StatusText,
			issue.AssignedTo,
			issue.CreatedBy,
			output.Timestamp(issue.UpdatedOn),
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(ctx context.Context, project, id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	found, err := svc.Search(orBackground(ctx), project, map[string]string{issues.FieldID: id})
	if err != nil {
		return fmt.Errorf("show issue: %w", err)
	}
	if len(found) == 0 {
		return fmt.Errorf("issue %s not found in %s", id, project)
	}
	issue := found[0]

	if issueJSON {
		return ui.JSON(issue)
	}

	printIssue(issue)
	return nil
}

func printIssue(issue *models.Issue) {
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(issue.ID), issue.IssueTitle)
	fmt.Fprintf(ui.Out, "  Project:    %s\n", issue.Project)
	fmt.Fprintf(ui.Out, "  State:      %s\n", output.OpenLabel(issue.Open))
	if issue.StatusText != "" {
		fmt.Fprintf(ui.Out, "  Status:     %s\n", issue.StatusText)
	}
	fmt.Fprintf(ui.Out, "  Created by: %s\n", issue.CreatedBy)
	if issue.AssignedTo != "" {
		fmt.Fprintf(ui.Out, "  Assigned:   %s\n", issue.AssignedTo)
	}
	fmt.Fprintf(ui.Out, "  Text:       %s\n", issue.IssueText)
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedOn.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Updated:    %s\n", issue.UpdatedOn.Format(time.RFC3339))
}

func issueAddRun(ctx context.Context, project string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add issue %q to %s", issueTitle, project)
		return nil
	}

	issue, err := svc.Create(orBackground(ctx), project, issues.Payload{
		issues.FieldIssueTitle: issueTitle,
		issues.FieldIssueText:  issueText,
		issues.FieldCreatedBy:  issueCreatedBy,
		issues.FieldAssignedTo: issueAssignedTo,
		issues.FieldStatusText: issueStatusText,
	})
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}

	ui.Success("Created issue %s in %s: %s", output.Cyan(issue.ID), project, issue.IssueTitle)
	return nil
}

func issueUpdateRun(ctx context.Context, project, id string, p issues.Payload) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	p[issues.FieldID] = id

	if dryRun {
		ui.DryRunMsg("Would update issue %s in %s", id, project)
		return nil
	}

	updated, err := svc.Update(orBackground(ctx), project, p)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}

	ui.Success("Updated issue %s", output.Cyan(updated))
	return nil
}

func issueDeleteRun(ctx context.Context, project, id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s from %s", id, project)
		return nil
	}

	deleted, err := svc.Delete(orBackground(ctx), project, issues.Payload{issues.FieldID: id})
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}

	ui.Success("Deleted issue %s", output.Cyan(deleted))
	return nil
}

// orBackground substitutes context.Background for a nil context, which
// cobra hands out when run functions are called outside Execute.
func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
