package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kidandcat/communityconnect/internal/db"
	"github.com/kidandcat/communityconnect/internal/feeds"
	"github.com/kidandcat/communityconnect/internal/geo"
	"github.com/kidandcat/communityconnect/internal/regions"
)

func migrateCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, logger, err := setup(g, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := db.Init(cfg.DataDir); err != nil {
				return fmt.Errorf("init database: %w", err)
			}
			db.Close()
			logger.Info("database ready", zap.String("data_dir", cfg.DataDir))
			return nil
		},
	}
	cmd.Flags().String("data-dir", "", "directory holding the database")
	return cmd
}

// refreshCmd fetches every agency feed once and prints per-source status.
func refreshCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the agency feeds once and report what came back",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, logger, err := setup(g, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			policy, err := cfg.AgingPolicy()
			if err != nil {
				return err
			}
			agg := feeds.New(newFetchers(cfg), feeds.Options{
				Timeout: cfg.Feeds.Timeout,
				Policy:  policy,
				Logger:  logger,
			})
			refreshErr := agg.Refresh(cmd.Context())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tINCIDENTS\tSKIPPED\tLAST SUCCESS\tERROR")
			for _, st := range agg.Status() {
				last := "never"
				if !st.LastSuccess.IsZero() {
					last = humanize.RelTime(st.LastSuccess, time.Now(), "ago", "from now")
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", st.Source, st.Count, st.Skipped, last, st.LastError)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return refreshErr
		},
	}
}

func regionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List the configured regions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SLUG\tNAME\tCENTER\tRADIUS KM\tSUBURBS")
			for _, r := range regions.Default().All() {
				fmt.Fprintf(w, "%s\t%s\t%.4f,%.4f\t%g\t%d\n",
					r.Slug, r.Name, r.Center.Lat, r.Center.Lng, r.RadiusKm, len(r.Suburbs))
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(regionsLookupCmd())
	return cmd
}

func regionsLookupCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "lookup [suburb or address]",
		Short: "Resolve a suburb, free text or point to a region",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			var p geo.Point
			if at != "" {
				var err error
				if p, err = parseLatLng(at); err != nil {
					return err
				}
			}
			if text == "" && at == "" {
				return fmt.Errorf("give a suburb, an address or --at lat,lng")
			}
			r := regions.Default().Resolve(text, text, p)
			if r == nil {
				return fmt.Errorf("no region matches %q", strings.TrimSpace(text+" "+at))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Slug, r.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "point as lat,lng")
	return cmd
}

func parseLatLng(s string) (geo.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("invalid point %q, want lat,lng", s)
	}
	var p geo.Point
	var err error
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return geo.Point{}, fmt.Errorf("invalid latitude: %w", err)
	}
	if p.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return geo.Point{}, fmt.Errorf("invalid longitude: %w", err)
	}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("point %q out of range", s)
	}
	return p, nil
}
