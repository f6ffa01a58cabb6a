package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/domails/config"
	"github.com/customeros/domails/internal/database"
	"github.com/customeros/domails/internal/repository"
	"github.com/customeros/domails/server"
)

func main() {
	app := &cli.App{
		Name:  "domails",
		Usage: "domain verification and mail provider provisioning engine",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(c *cli.Context) error {
					_, db, err := setup()
					if err != nil {
						return err
					}
					if err := repository.MigrateDB(db); err != nil {
						return cli.Exit("Database migration failed: "+err.Error(), 1)
					}
					log.Println("Database migration completed successfully")
					return nil
				},
			},
			{
				Name:  "server",
				Usage: "Start the application server",
				Action: func(c *cli.Context) error {
					cfg, db, err := setup()
					if err != nil {
						return err
					}

					log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
					log.Println("Domails starting up...")

					srv, err := server.NewServer(cfg, db)
					if err != nil {
						return cli.Exit("Server setup failed: "+err.Error(), 1)
					}
					if err := srv.Run(); err != nil {
						return cli.Exit("Server startup failed: "+err.Error(), 1)
					}

					log.Println("Shutdown complete")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, cli.Exit("Config initialization failed: "+err.Error(), 1)
	}

	db, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, cli.Exit("Database initialization failed: "+err.Error(), 1)
	}
	return cfg, db, nil
}
