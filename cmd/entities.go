package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/entity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var (
	entitiesKind    string
	entitiesLimit   int
	entitiesResolve string
	entitiesAliases string
	entitiesJSON    bool
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Inspect the canonical entity registry",
	Long:  "Lists canonical companies and contacts, resolves a name or domain through the alias registry, or shows every alias bound to one entity.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		switch {
		case entitiesResolve != "":
			resolver := entity.NewResolver(st)
			ent, err := resolver.Lookup(ctx, model.Identity{Company: entitiesResolve, Domain: entitiesResolve})
			if err != nil {
				return eris.Wrap(err, "entities: resolve")
			}
			if ent == nil {
				fmt.Fprintf(os.Stdout, "no entity for %q\n", entitiesResolve)
				return nil
			}
			aliases, err := st.ListAliases(ctx, ent.ID)
			if err != nil {
				return eris.Wrap(err, "entities: list aliases")
			}
			return writeJSON(os.Stdout, struct {
				Entity  *model.CanonicalEntity `json:"entity"`
				Aliases []model.Alias          `json:"aliases"`
			}{ent, aliases})

		case entitiesAliases != "":
			aliases, err := st.ListAliases(ctx, entitiesAliases)
			if err != nil {
				return eris.Wrap(err, "entities: list aliases")
			}
			if entitiesJSON {
				return writeJSON(os.Stdout, aliases)
			}
			printAliases(os.Stdout, aliases)
			return nil

		default:
			filter := store.EntityFilter{Kind: model.EntityKind(entitiesKind), Limit: entitiesLimit}
			ents, err := st.ListEntities(ctx, filter)
			if err != nil {
				return eris.Wrap(err, "entities: list")
			}
			if entitiesJSON {
				return writeJSON(os.Stdout, ents)
			}
			printEntities(os.Stdout, ents)
			return nil
		}
	},
}

func init() {
	entitiesCmd.Flags().StringVar(&entitiesKind, "kind", "", "filter by kind: company, contact")
	entitiesCmd.Flags().IntVar(&entitiesLimit, "limit", 100, "max entities to list")
	entitiesCmd.Flags().StringVar(&entitiesResolve, "resolve", "", "resolve a name or domain to its canonical entity")
	entitiesCmd.Flags().StringVar(&entitiesAliases, "aliases", "", "list aliases for a canonical entity id")
	entitiesCmd.Flags().BoolVar(&entitiesJSON, "json", false, "emit JSON instead of a table")
	rootCmd.AddCommand(entitiesCmd)
}

func printEntities(out io.Writer, ents []model.CanonicalEntity) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tNAME\tCREATED")
	for _, e := range ents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			truncateID(e.ID), e.Kind, e.DisplayName, e.CreatedAt.Format("2006-01-02"))
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\n%d entities\n", len(ents))
}

func printAliases(out io.Writer, aliases []model.Alias) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tVALUE\tSOURCE\tCREATED")
	for _, a := range aliases {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			a.Type, a.Value, a.Source, a.CreatedAt.Format("2006-01-02"))
	}
	_ = w.Flush()
}
