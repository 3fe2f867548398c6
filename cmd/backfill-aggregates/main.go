package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/horecafocus/backoffice_backend/config"
	"github.com/horecafocus/backoffice_backend/models"
	"github.com/horecafocus/backoffice_backend/utils"
	"github.com/horecafocus/backoffice_backend/workflow"
)

func main() {
	locationRef := flag.String("location", "", "Optional: backfill only one location ref. If empty, backfills all active locations.")
	from := flag.String("from", "", "Start date (YYYY-MM-DD). Required.")
	to := flag.String("to", "", "Optional: end date (YYYY-MM-DD). Defaults to yesterday.")
	budgetMinutes := flag.Int("budget-minutes", 0, "Optional: wall-clock budget in minutes. 0 means no budget.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	// Ensure schema is up-to-date before writing aggregates.
	models.MigrateTable()

	start, err := utils.ParseDate(strings.TrimSpace(*from))
	if err != nil {
		fmt.Fprintln(os.Stderr, "-from is required (YYYY-MM-DD)")
		os.Exit(1)
	}

	end := utils.TruncateToDate(time.Now()).AddDate(0, 0, -1)
	if strings.TrimSpace(*to) != "" {
		end, err = utils.ParseDate(strings.TrimSpace(*to))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -to date: %v\n", err)
			os.Exit(1)
		}
	}

	if *budgetMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*budgetMinutes)*time.Minute)
		defer cancel()
	}
	ctx = utils.SetJobTypeInContext(ctx, "historical-backfill")

	var locationRefs []string
	if strings.TrimSpace(*locationRef) != "" {
		locationRefs = []string{strings.TrimSpace(*locationRef)}
	}

	fmt.Printf("Backfilling aggregates locations=%v from=%s to=%s\n",
		locationRefs, start.Format(utils.DateLayout), end.Format(utils.DateLayout))

	resolver := workflow.NewWorkingDayResolver(db)
	orchestrator := workflow.NewOrchestrator(db, resolver)
	result, err := orchestrator.Run(ctx, start, end, locationRefs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill failed: %v\n", err)
		os.Exit(1)
	}

	for _, msg := range result.Errors {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	}
	for _, msg := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", msg)
	}
	fmt.Printf("Backfill complete processed=%d created=%d updated=%d errors=%d partial=%t\n",
		result.Processed, result.Created, result.Updated, len(result.Errors), result.Partial)
}
