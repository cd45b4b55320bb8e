package cmd

import (
	"fmt"
	"os"

	"github.com/ams-cubing/public-calendar/internal/config"
	"github.com/ams-cubing/public-calendar/internal/domain/regions"
	"github.com/ams-cubing/public-calendar/internal/storage/postgres"
	"github.com/spf13/cobra"
)

func newSeedCommand(global *globalFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Load regions, states and holidays from a YAML file",
		Long: `Upsert regions, their states and the holiday list from a YAML file.
Running the same file twice leaves the same rows.

Example file:

  regions:
    - name: Occidente
      color: "#f59e0b"
      states:
        - {id: JAL, name: Jalisco}
        - {id: COL, name: Colima}
  holidays:
    - {date: 2027-09-16, name: Día de la Independencia}

Examples:
  server seed deploy/seed.yaml
  server seed deploy/seed.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readSeedFile(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %s\n", args[0], describeSeed(countSeed(file)))
				return nil
			}

			db, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			pool, err := openPool(cmd.Context(), db)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo, err := postgres.NewRepository(pool)
			if err != nil {
				return err
			}
			res, err := regions.NewService(repo.Regions()).Seed(cmd.Context(), file)
			if err != nil {
				return err
			}
			logger := config.NewLogger(logging(global))
			logger.Info().
				Int("regions", res.Regions).
				Int("states", res.States).
				Int("holidays", res.Holidays).
				Msg("seed applied")
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s\n", describeSeed(res))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing to the database")
	return cmd
}

func readSeedFile(path string) (*regions.SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return regions.ParseSeed(f)
}

func countSeed(file *regions.SeedFile) regions.SeedResult {
	res := regions.SeedResult{Regions: len(file.Regions), Holidays: len(file.Holidays)}
	for _, r := range file.Regions {
		res.States += len(r.States)
	}
	return res
}

func describeSeed(res regions.SeedResult) string {
	return fmt.Sprintf("%d regions, %d states, %d holidays", res.Regions, res.States, res.Holidays)
}
