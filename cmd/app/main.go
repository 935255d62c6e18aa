package main

import (
	"context"
	"fmt"
	"os"

	"secops-console/internal/adapters/cli"
	"secops-console/internal/app"
	"secops-console/internal/core"
	"secops-console/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, cli.Usage)
		os.Exit(2)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := app.NewAppService(core.NewUserService(pool))
	migrate := func(ctx context.Context) ([]string, error) { return db.Migrate(ctx, pool) }

	if err := cli.Run(ctx, svc, migrate, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		pool.Close()
		os.Exit(1)
	}
}
