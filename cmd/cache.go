package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/entity"
	"github.com/sells-group/outreach-cli/internal/model"
)

var (
	cacheCompany      string
	cachePurgeExpired bool
)

// cacheProviders mirrors the adapter names; snapshots are keyed by them.
var cacheProviders = []string{"edgar", "perplexity", "jina", "peopledata", "salesforce"}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clean the provider snapshot cache",
	Long:  "Shows per-provider snapshot freshness for one company, or purges every expired snapshot. Expiry is otherwise lazy; nothing is evicted until asked.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if cachePurgeExpired {
			n, err := st.DeleteExpiredRecords(ctx)
			if err != nil {
				return eris.Wrap(err, "cache: purge expired")
			}
			zap.L().Info("cache: expired snapshots purged", zap.Int("deleted", n))
			return writeJSON(os.Stdout, map[string]int{"purged": n})
		}

		if cacheCompany == "" {
			return eris.New("cache: provide --company or --purge-expired")
		}

		resolver := entity.NewResolver(st)
		ent, err := resolver.Lookup(ctx, model.Identity{Company: cacheCompany, Domain: cacheCompany})
		if err != nil {
			return eris.Wrap(err, "cache: resolve company")
		}
		if ent == nil {
			fmt.Fprintf(os.Stdout, "no entity for %q; nothing cached yet\n", cacheCompany)
			return nil
		}

		cache := entity.NewCache(st, cfg.Cache)
		printCacheState(ctx, os.Stdout, cache, ent)
		return nil
	},
}

func init() {
	cacheCmd.Flags().StringVar(&cacheCompany, "company", "", "company name or domain to inspect")
	cacheCmd.Flags().BoolVar(&cachePurgeExpired, "purge-expired", false, "delete every expired snapshot")
	rootCmd.AddCommand(cacheCmd)
}

func printCacheState(ctx context.Context, out io.Writer, cache *entity.Cache, ent *model.CanonicalEntity) {
	fmt.Fprintf(out, "%s (%s)\n", ent.DisplayName, truncateID(ent.ID))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSTATE\tFETCHED\tEXPIRES\tBYTES")
	for _, p := range cacheProviders {
		rec, err := cache.Get(ctx, ent.ID, p)
		if err != nil {
			fmt.Fprintf(w, "%s\terror\t\t\t\n", p)
			continue
		}
		if rec == nil {
			fmt.Fprintf(w, "%s\tabsent\t\t\t\n", p)
			continue
		}
		state := "fresh"
		if rec.IsExpired(time.Now()) {
			state = "expired"
		}
		expires := ""
		if rec.ExpiresAt != nil {
			expires = rec.ExpiresAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			p, state, rec.FetchedAt.Format("2006-01-02 15:04"), expires, len(rec.Payload))
	}
	_ = w.Flush()
}
