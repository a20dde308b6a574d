package app

import (
	"bufio"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/backoffice-console/internal/app"
	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/domain"
)

func newListCmd() *cobra.Command {
	var (
		page     int
		pageSize int
		filter   string
		sortKey  string
		desc     bool
		format   string
	)
	cmd := &cobra.Command{
		Use:   "list RESOURCE",
		Short: "List one page of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConsoleApp(cmd.Context(), func(a *app.ConsoleApp) error {
				res, err := a.Resource(args[0])
				if err != nil {
					return err
				}
				// the first load gives the page bounds the requested page is clamped to
				if err := res.Controller.Refresh(cmd.Context()); err != nil {
					return fmt.Errorf("failed to list %s: %s", res.Name(), collection.UserMessage(err))
				}
				dir := collection.SortAsc
				if desc {
					dir = collection.SortDesc
				}
				patch := collection.QueryPatch{FilterText: &filter}
				if pageSize > 0 {
					patch.PageSize = &pageSize
				}
				if sortKey != "" {
					patch.SortKey, patch.SortDirection = &sortKey, &dir
				}
				if err := res.Controller.SetQuery(cmd.Context(), patch); err != nil {
					return fmt.Errorf("failed to list %s: %s", res.Name(), collection.UserMessage(err))
				}
				if page > 1 {
					if err := res.Controller.SetQuery(cmd.Context(), collection.PagePatch(page-1)); err != nil {
						return fmt.Errorf("failed to list %s: %s", res.Name(), collection.UserMessage(err))
					}
				}

				snap := res.Controller.Snapshot()
				items := make([]collection.Item, len(snap.Items))
				for i, it := range snap.Items {
					items[i] = res.Present(it)
				}
				if err := writeItems(cmd.OutOrStdout(), format, res.Config.GetColumns(), items); err != nil {
					return err
				}
				if format != "json" {
					fmt.Fprintf(cmd.ErrOrStderr(), "page %d/%d, %d total\n", snap.Query.Page+1, snap.MaxPage+1, snap.Total)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page to show, starting at 1")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Items per page (defaults to the configured page size)")
	cmd.Flags().StringVar(&filter, "filter", "", "Filter text")
	cmd.Flags().StringVar(&sortKey, "sort", "", "Sort key")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table, json)")
	return cmd
}

type mutationFlags struct {
	set   []string
	data  string
	files []string
	perms []string
}

func (f *mutationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "Field value as key=value, repeatable")
	cmd.Flags().StringVar(&f.data, "data", "", "Payload as a JSON object")
	cmd.Flags().StringArrayVar(&f.files, "file", nil, "File part as field=path, sent as multipart, repeatable")
	cmd.Flags().StringSliceVar(&f.perms, "permissions", nil, "Permission flags to grant (create, read, update, delete, all)")
}

func (f *mutationFlags) payload() (collection.Item, []collection.File, error) {
	payload, err := parseFields(f.set, f.data)
	if err != nil {
		return nil, nil, err
	}
	if f.perms != nil {
		payload = app.SetPermissions(payload, parsePermissions(f.perms))
	}
	if len(f.files) == 0 {
		return payload, nil, nil
	}
	files := make([]collection.File, 0, len(f.files))
	for _, spec := range f.files {
		field, path, ok := strings.Cut(spec, "=")
		if !ok || field == "" || path == "" {
			return nil, nil, fmt.Errorf("invalid --file %q, expected field=path", spec)
		}
		file, err := readFile(field, path)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, file)
	}
	return payload, files, nil
}

func parsePermissions(flags []string) domain.Permissions {
	var p domain.Permissions
	for _, f := range flags {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case domain.PermCreate:
			p.Create = true
		case domain.PermRead:
			p.Read = true
		case domain.PermUpdate:
			p.Update = true
		case domain.PermDelete:
			p.Delete = true
		case domain.PermAll:
			p.SetAll(true)
		}
	}
	return p
}

func readFile(field, path string) (collection.File, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return collection.File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return collection.File{Field: field, Name: name, ContentType: contentType, Data: data}, nil
}

func newCreateCmd() *cobra.Command {
	var flags mutationFlags
	cmd := &cobra.Command{
		Use:   "create RESOURCE",
		Short: "Create a record",
		Example: `  bo-console create companies --set code=AC --set name=Acme
  bo-console create products --set name=Latte --set category_id=2 --file image=latte.png
  bo-console create roles --set name=Cashier --permissions read,create`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, files, err := flags.payload()
			if err != nil {
				return err
			}
			return withConsoleApp(cmd.Context(), func(a *app.ConsoleApp) error {
				res, err := a.Resource(args[0])
				if err != nil {
					return err
				}
				payload, err := res.PrepareCreate(cmd.Context(), payload)
				if err != nil {
					return err
				}
				intent := collection.NewCreateIntent(payload)
				var record collection.Item
				if files != nil {
					record, err = res.Coordinator.Upload(cmd.Context(), intent, files)
				} else {
					record, err = res.Coordinator.Apply(cmd.Context(), intent)
				}
				if err != nil {
					return fmt.Errorf("%s", collection.UserMessage(err))
				}
				return writeRecord(cmd.OutOrStdout(), res.Present(record))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var flags mutationFlags
	cmd := &cobra.Command{
		Use:   "update RESOURCE ID",
		Short: "Update a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, files, err := flags.payload()
			if err != nil {
				return err
			}
			return withConsoleApp(cmd.Context(), func(a *app.ConsoleApp) error {
				res, err := a.Resource(args[0])
				if err != nil {
					return err
				}
				intent := collection.NewUpdateIntent(collection.NewID(args[1]), payload)
				var record collection.Item
				if files != nil {
					record, err = res.Coordinator.Upload(cmd.Context(), intent, files)
				} else {
					record, err = res.Coordinator.Apply(cmd.Context(), intent)
				}
				if err != nil {
					return fmt.Errorf("%s", collection.UserMessage(err))
				}
				return writeRecord(cmd.OutOrStdout(), res.Present(record))
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete RESOURCE ID",
		Short: "Delete a record after confirmation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := collection.NewID(args[1])
			if !yes && !confirm(cmd, fmt.Sprintf("delete %s %s? (y/N) ", args[0], id)) {
				return collection.ErrNotConfirmed
			}
			return withConsoleApp(cmd.Context(), func(a *app.ConsoleApp) error {
				res, err := a.Resource(args[0])
				if err != nil {
					return err
				}
				if _, err := res.Coordinator.Apply(cmd.Context(), collection.NewDeleteIntent(id).Confirm()); err != nil {
					return fmt.Errorf("%s", collection.UserMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s deleted\n", res.Name(), id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import RESOURCE FILE.csv",
		Short: "Import records from a CSV file",
		Long: `Import uploads a CSV file whose header row names the fields. The backend
creates one record per row.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readFile("file", args[1])
			if err != nil {
				return err
			}
			file.ContentType = "text/csv"
			return withConsoleApp(cmd.Context(), func(a *app.ConsoleApp) error {
				res, err := a.Resource(args[0])
				if err != nil {
					return err
				}
				n, err := res.Coordinator.Import(cmd.Context(), file)
				if err != nil {
					return fmt.Errorf("%s", collection.UserMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s\n", n, res.Name())
				return nil
			})
		},
	}
	return cmd
}
