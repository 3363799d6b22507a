package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/slmtnm/cloudisk/internal/models"
	"github.com/slmtnm/cloudisk/internal/navigator"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// printEntries renders entries as a table
func printEntries(w io.Writer, entries []models.FileEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No files found.")
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "TYPE", "SIZE", "MODIFIED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, e := range entries {
		size := models.FormatSize(e.Size)
		name := e.Name
		if e.IsDir() {
			size = "-"
			name += "/"
		}
		modified := "-"
		if !e.Date.IsZero() {
			modified = e.Date.Format("2006-01-02 15:04")
		}
		t.Row(e.ID, name, string(e.Type), size, modified)
	}
	fmt.Fprintln(w, t.Render())
}

// browse signs in and returns a navigator placed in dir
func (a *app) browse(ctx context.Context, dir string, order models.SortOrder) (*navigator.Navigator, *backend, error) {
	b, err := a.open(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	if _, err := a.signedIn(ctx, b); err != nil {
		return nil, nil, err
	}

	n := navigator.New(ctx, b.svc, a.log)
	// sorting also lists the root
	settle(n.SetSort(order), n.Update)
	if dir != "" {
		settle(n.OpenDirectory(models.FileEntry{ID: dir, Type: models.TypeDir}), n.Update)
	}
	if err := n.Err(); err != nil {
		return nil, nil, err
	}
	if n.CurrentDir() != dir {
		return nil, nil, fmt.Errorf("directory %q not found", dir)
	}
	return n, b, nil
}

func sortFlag(cmd *cobra.Command, order *string) {
	names := make([]string, 0, len(models.SortOrders))
	for _, o := range models.SortOrders {
		if o != models.SortNone {
			names = append(names, string(o))
		}
	}
	cmd.Flags().StringVarP(order, "sort", "s", "", "Sort by "+strings.Join(names, ", "))
}

// newLsCmd creates the 'ls' command.
func newLsCmd(a *app) *cobra.Command {
	var order string

	cmd := &cobra.Command{
		Use:   "ls [directory-id]",
		Short: "List a directory (the root by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sort, err := models.ParseSortOrder(order)
			if err != nil {
				return a.report(cmd, err)
			}
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			n, _, err := a.browse(cmd.Context(), dir, sort)
			if err != nil {
				return a.report(cmd, err)
			}
			printEntries(cmd.OutOrStdout(), n.Listing())
			return nil
		},
	}

	sortFlag(cmd, &order)
	return cmd
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd(a *app) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _, err := a.browse(cmd.Context(), parent, models.SortNone)
			if err != nil {
				return a.report(cmd, err)
			}
			settle(n.CreateDirectory(args[0]), n.Update)
			if err := n.Err(); err != nil {
				return a.report(cmd, err)
			}
			for _, e := range n.Listing() {
				if e.IsDir() && e.Name == strings.TrimSpace(args[0]) {
					fmt.Fprintf(cmd.OutOrStdout(), "✓ Created '%s' (%s)\n", e.Name, e.ID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&parent, "parent", "p", "", "Parent directory id (default: root)")
	return cmd
}

// newRmCmd creates the 'rm' command.
func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id> [id...]",
		Short: "Delete files or directories with everything in them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _, err := a.browse(cmd.Context(), "", models.SortNone)
			if err != nil {
				return a.report(cmd, err)
			}
			var failed int
			for _, id := range args {
				settle(n.DeleteEntry(models.FileEntry{ID: id}), n.Update)
				if err := n.Err(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error: failed to delete %s: %s\n", id, err)
					n.ClearErr()
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d deletions failed", failed, len(args))
			}
			return nil
		},
	}
}

// newSearchCmd creates the 'search' command.
func newSearchCmd(a *app) *cobra.Command {
	var order string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find files by name anywhere in the tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sort, err := models.ParseSortOrder(order)
			if err != nil {
				return a.report(cmd, err)
			}
			n, _, err := a.browse(cmd.Context(), "", sort)
			if err != nil {
				return a.report(cmd, err)
			}
			settle(n.Search(args[0]), n.Update)
			if err := n.Err(); err != nil {
				return a.report(cmd, err)
			}
			printEntries(cmd.OutOrStdout(), n.Listing())
			return nil
		},
	}

	sortFlag(cmd, &order)
	return cmd
}
