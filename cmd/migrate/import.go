package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nzvengeance/flight-logbook/internal/baas"
	"github.com/nzvengeance/flight-logbook/internal/logbook"
	"github.com/nzvengeance/flight-logbook/internal/models"
	"github.com/nzvengeance/flight-logbook/internal/source"
	syncsvc "github.com/nzvengeance/flight-logbook/internal/sync"
)

type importOptions struct {
	file     string
	mapping  string
	owner    string
	class    string
	pageSize int
	rows     int
	legacy   bool
}

func newCSVCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Import a CSV file with any header row using a column mapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(opts.file)
			if err != nil {
				return err
			}
			defer f.Close()

			src, err := source.NewCSV(f)
			if err != nil {
				return err
			}
			m, err := loadMapping(opts.mapping, src.Headers())
			if err != nil {
				return err
			}
			adapter, err := logbook.NewAdapter(m)
			if err != nil {
				return err
			}
			return a.runImport(cmd.Context(), cmd.OutOrStdout(), "csv:"+filepath.Base(opts.file), src, adapter, opts.owner)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "CSV file to import (required)")
	cmd.Flags().StringVar(&opts.mapping, "mapping", "", "JSON file mapping fields to columns (default: suggested from headers)")
	cmd.Flags().StringVar(&opts.owner, "owner", "", "Owner key for rows without an owner column")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newLegacyCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Import a legacy logbook export; owners come from its user_id column",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(opts.file)
			if err != nil {
				return err
			}
			defer f.Close()

			src, err := source.NewLegacy(f)
			if err != nil {
				return err
			}
			return a.runImport(cmd.Context(), cmd.OutOrStdout(), "legacy:"+filepath.Base(opts.file), src, logbook.NewLegacyAdapter(), opts.owner)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Legacy export CSV (required)")
	cmd.Flags().StringVar(&opts.owner, "owner", "", "Owner key for rows with an empty user_id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newBaaSCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "baas",
		Short: "Import flights straight from the hosted backend's class export",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.baasClient(opts.pageSize)
			if err != nil {
				return err
			}
			src := source.NewBaaS(client, opts.class)
			return a.runImport(cmd.Context(), cmd.OutOrStdout(), "baas:"+opts.class, src, logbook.NewLegacyAdapter(), opts.owner)
		},
	}

	cmd.Flags().StringVar(&opts.class, "class", "Flight", "Backend class holding flights")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Objects per request (default: client default)")
	cmd.Flags().StringVar(&opts.owner, "owner", "", "Owner key for objects without an owner")
	return cmd
}

func newGroupsCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Copy flight groups from the hosted backend as-is",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.baasClient(opts.pageSize)
			if err != nil {
				return err
			}
			objects, err := client.FetchClass(ctx, opts.class)
			if err != nil {
				return err
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			saved, failed := 0, 0
			for _, obj := range objects {
				g := source.GroupFromObject(obj)
				if err := db.UpsertFlightGroup(ctx, &g); err != nil {
					log.Warn().Err(err).Str("group", g.IDCode).Msg("failed to save group")
					failed++
					continue
				}
				saved++
			}

			log.Info().Int("saved", saved).Int("failed", failed).Msg("group copy complete")
			return printJSON(cmd.OutOrStdout(), map[string]int{"saved": saved, "failed": failed})
		},
	}

	cmd.Flags().StringVar(&opts.class, "class", "FlightGroup", "Backend class holding groups")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Objects per request (default: client default)")
	return cmd
}

type previewRow struct {
	Index  int            `json:"index"`
	Record logbook.Record `json:"record"`
	Flight *models.Flight `json:"flight,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func newPreviewCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the mapping and the first normalized rows of a file without storing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(opts.file)
			if err != nil {
				return err
			}
			defer f.Close()

			var (
				src     logbook.RecordSource
				adapter *logbook.Adapter
			)
			if opts.legacy {
				if src, err = source.NewLegacy(f); err != nil {
					return err
				}
				adapter = logbook.NewLegacyAdapter()
			} else {
				csvSrc, err := source.NewCSV(f)
				if err != nil {
					return err
				}
				m, err := loadMapping(opts.mapping, csvSrc.Headers())
				if err != nil {
					return err
				}
				if adapter, err = logbook.NewAdapter(m); err != nil {
					return err
				}
				src = csvSrc
			}

			records, err := source.Take(cmd.Context(), src, opts.rows)
			if err != nil {
				return err
			}
			rows := make([]previewRow, 0, len(records))
			for i, raw := range records {
				row := previewRow{Index: i + 1, Record: raw}
				rec, err := adapter.Adapt(raw)
				if err == nil {
					// Owner 1 stands in for whoever the rows end up belonging to.
					row.Flight, err = logbook.Normalize(rec, 1)
				}
				if err != nil {
					row.Error = err.Error()
				}
				rows = append(rows, row)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"mapping": adapter.Mapping(), "rows": rows})
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "CSV file to preview (required)")
	cmd.Flags().StringVar(&opts.mapping, "mapping", "", "JSON file mapping fields to columns (default: suggested from headers)")
	cmd.Flags().BoolVar(&opts.legacy, "legacy", false, "Read the file as a legacy export")
	cmd.Flags().IntVar(&opts.rows, "rows", 5, "Number of rows to show")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// runImport loads records into the database and prints the run and result.
// An aborted run is reported and then returned as the command error.
func (a *app) runImport(ctx context.Context, out io.Writer, name string, records logbook.RecordSource, adapter *logbook.Adapter, ownerKey string) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	var defaultOwner int64
	if ownerKey != "" {
		if defaultOwner, err = db.FindOrCreateOwner(ctx, ownerKey); err != nil {
			return fmt.Errorf("resolving owner %q: %w", ownerKey, err)
		}
	}

	run, res, err := syncsvc.NewImporter(db, a.cfg.ProgressEvery).Import(ctx, syncsvc.Request{
		Source:       name,
		DefaultOwner: defaultOwner,
		Adapter:      adapter,
		Records:      records,
	})
	if run != nil {
		if perr := printJSON(out, map[string]any{"run": run, "result": res}); perr != nil {
			return perr
		}
	}
	return err
}

func (a *app) baasClient(pageSize int) (*baas.Client, error) {
	if a.cfg.BaaSBaseURL == "" {
		return nil, fmt.Errorf("BAAS_BASE_URL is not configured")
	}
	client := baas.NewClient(a.cfg.BaaSBaseURL, a.cfg.BaaSAppID, a.cfg.BaaSAPIKey, a.cfg.BaaSRateLimit)
	if pageSize > 0 {
		client.SetPageSize(pageSize)
	}
	return client, nil
}

// loadMapping reads a field-to-column JSON object, or suggests one from the
// headers when no file is given.
func loadMapping(path string, headers []string) (logbook.Mapping, error) {
	if path == "" {
		m := logbook.SuggestMapping(headers)
		log.Info().Interface("mapping", m).Msg("using suggested mapping")
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mapping: %w", err)
	}
	var m logbook.Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing mapping: %w", err)
	}
	return m, nil
}
