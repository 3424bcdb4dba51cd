package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"aramcoach/internal/config"
	"aramcoach/internal/ddragon"
	"aramcoach/internal/facts"
)

var (
	fetchLanguage string
	importAll     bool
)

var fetchPatchCmd = &cobra.Command{
	Use:   "fetch-patch [patch]",
	Short: "Download a patch from Data Dragon into the data directory",
	Long: `Downloads items, champions and runes for a patch prefix such as 14.19, or
the newest patch when none is given, and writes them under data.root.
An existing guides.json in the patch directory is kept.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := "latest"
		if len(args) == 1 {
			patch = args[0]
		}

		client := ddragon.NewClient(ddragon.WithLanguage(fetchLanguage), ddragon.WithLogger(logger))
		pf, version, err := client.PatchFacts(cmd.Context(), patch)
		if err != nil {
			return err
		}

		store := facts.NewDirStore(cfg.Data.Root)
		if err := store.Write(pf); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote patch %s (Data Dragon %s) to %s: %d items, %d champions, %d runes\n",
			pf.Patch, version, cfg.Data.Root, len(pf.Items), len(pf.Champions), len(pf.Runes))
		return nil
	},
}

var importPatchCmd = &cobra.Command{
	Use:   "import-patch [patch...]",
	Short: "Copy patches from the data directory into the SQL fact store",
	Long: `Reads patches from data.root and imports them into the SQLite or Turso
store named by data.backend and data.dsn. Re-importing a patch replaces it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Data.Backend == config.BackendDir {
			return fmt.Errorf("import-patch needs data.backend %q or %q", config.BackendSQLite, config.BackendLibSQL)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		src := facts.NewDirStore(cfg.Data.Root)
		patches := args
		if importAll {
			var err error
			if patches, err = src.Patches(); err != nil {
				return err
			}
		}
		if len(patches) == 0 {
			return fmt.Errorf("name at least one patch or pass --all")
		}

		ctx := cmd.Context()
		dst, err := facts.OpenSQLStore(ctx, cfg.Data.Backend, cfg.Data.DSN, cfg.Data.AuthToken)
		if err != nil {
			return err
		}
		defer dst.Close()

		for _, patch := range patches {
			pf, err := src.Load(ctx, patch)
			if err != nil {
				return err
			}
			if err := dst.Import(ctx, pf); err != nil {
				return err
			}
			logger.Info("patch imported", zap.String("patch", patch), zap.String("backend", cfg.Data.Backend))
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d items, %d champions, %d runes, %d guides\n",
				patch, len(pf.Items), len(pf.Champions), len(pf.Runes), len(pf.GuideDocs))
		}
		return nil
	},
}

func init() {
	fetchPatchCmd.Flags().StringVar(&fetchLanguage, "language", "en_US", "Data Dragon locale")
	importPatchCmd.Flags().BoolVar(&importAll, "all", false, "import every patch under data.root")
}
