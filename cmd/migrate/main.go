package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kdimtricp/camsearch/internal/app"
	"github.com/kdimtricp/camsearch/internal/database"
)

func main() {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "camsearch-migrate",
		Short:        "Apply or inspect database migrations",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v)
		},
	}
	app.BindCommonFlags(cmd, v)
	cmd.Flags().Bool("status", false, "show migration status only")
	cmd.Flags().String("db", "", "database type override (postgres or sqlite)")
	v.BindPFlag("database.type", cmd.Flags().Lookup("db"))

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, v *viper.Viper) error {
	cfg, log, err := app.Setup(cmd, v)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.DB(), log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if status, _ := cmd.Flags().GetBool("status"); !status {
		if err := db.RunMigrations(); err != nil {
			return err
		}
		fmt.Println("Migrations completed successfully!")
		return nil
	}

	migrator := database.NewMigrator(db.Conn(), db.Type(), log)
	if db.Type() != database.TypePostgres {
		fmt.Println("sqlite schema is created on connect; nothing to migrate")
		return nil
	}
	migrations, applied, err := migrator.Status(database.Migrations())
	if err != nil {
		return err
	}

	fmt.Println("Migration Status:")
	fmt.Println("=================")
	for _, m := range migrations {
		state := "pending"
		if applied[m.Version] {
			state = "applied"
		}
		fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, state)
	}
	return nil
}
