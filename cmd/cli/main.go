package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/expensebot/internal/categorize"
	"github.com/dvloznov/expensebot/internal/config"
	"github.com/dvloznov/expensebot/internal/domain"
	"github.com/dvloznov/expensebot/internal/gemini"
	"github.com/dvloznov/expensebot/internal/importer"
	"github.com/dvloznov/expensebot/internal/infra/sqlite"
	"github.com/dvloznov/expensebot/internal/logger"
	"github.com/dvloznov/expensebot/internal/receipt"
	"github.com/dvloznov/expensebot/internal/recon"
	"github.com/dvloznov/expensebot/internal/report"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		runImport(log)
	case "reconcile":
		runReconcile(log)
	case "receipt":
		runReceipt(log)
	case "add":
		runAdd(log)
	case "categorize":
		runCategorize(log)
	case "report":
		runReport(log)
	case "export":
		runExport(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Expense Bot CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import     Import a bank ledger CSV export")
	fmt.Println("  reconcile  Match pending expenses against the ledger")
	fmt.Println("  receipt    OCR a receipt photo and record the expense")
	fmt.Println("  add        Record an expense manually")
	fmt.Println("  categorize Suggest a tax category for a store / item list")
	fmt.Println("  report     Print a monthly or annual expense report")
	fmt.Println("  export     Write the annual expense CSV")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func openStore(cfg config.Config, log zerolog.Logger) *sqlite.Store {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	return store
}

// newModelClient builds the Gemini client, or returns nil when the API
// is unavailable so commands can degrade instead of aborting.
func newModelClient(ctx context.Context, cfg config.Config, log zerolog.Logger) *gemini.Client {
	client, err := gemini.NewClient(ctx, cfg.GeminiModel)
	if err != nil {
		log.Warn().Err(err).Msg("Gemini client unavailable, model features disabled")
		return nil
	}
	return client
}

func runImport(log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "Path to the ledger CSV export")
	fs.Parse(os.Args[2:])

	if *file == "" {
		log.Fatal().Msg("Error: --file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg := config.Load()
	store := openStore(cfg, log)
	defer store.Close()

	log.Info().Str("file", *file).Msg("Starting ledger import")

	res, err := importer.New(store, log).Import(ctx, *file)
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Imported %d transactions, skipped %d.\n", res.Imported, res.Skipped)
	for _, msg := range res.Errors {
		fmt.Printf("  warning: %s\n", msg)
	}
}

func runReconcile(log zerolog.Logger) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg := config.Load()
	store := openStore(cfg, log)
	defer store.Close()

	var judge recon.SimilarityJudge
	if client := newModelClient(ctx, cfg, log); client != nil {
		judge = client
	}

	results, err := recon.NewEngine(store, judge, log).Reconcile(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}

	if len(results) == 0 {
		fmt.Println("All expenses reconciled.")
		return
	}

	for _, r := range results {
		fmt.Printf("\n%s %s ¥%d\n", r.Expense.Date, r.Expense.StoreName, r.Expense.Amount)
		if len(r.Candidates) == 0 {
			fmt.Println("  no ledger candidates found")
			continue
		}
		for _, c := range r.Candidates {
			fmt.Printf("  [%s] %s %s %d (%s)\n",
				c.Confidence, c.Tx.Date, c.Tx.Description, c.Tx.Amount, c.Tx.ExternalID)
		}
	}
}

func runReceipt(log zerolog.Logger) {
	fs := flag.NewFlagSet("receipt", flag.ExitOnError)
	image := fs.String("image", "", "Path to the receipt photo")
	fs.Parse(os.Args[2:])

	if *image == "" {
		log.Fatal().Msg("Error: --image is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg := config.Load()
	store := openStore(cfg, log)
	defer store.Close()

	client := newModelClient(ctx, cfg, log)
	var scanner receipt.Scanner
	var picker categorize.CategoryPicker
	if client != nil {
		scanner = client
		picker = client
	}

	r, err := receipt.New(scanner, log).Scan(ctx, *image)
	if err != nil {
		log.Fatal().Err(err).Msg("Receipt scan failed")
	}

	expense := receipt.ToExpense(r, *image)
	cat, sub := categorize.New(store, picker, log).Categorize(ctx, r.StoreName, r.ItemsText())
	expense.Category = cat
	expense.Subcategory = sub

	if err := store.SaveExpense(ctx, expense); err != nil {
		log.Fatal().Err(err).Msg("Failed to save expense")
	}

	fmt.Printf("Recorded %s %s ¥%d as %s (%s)\n",
		expense.Date, expense.StoreName, expense.Amount, expense.Category, expense.ID)
}

func runAdd(log zerolog.Logger) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	date := fs.String("date", time.Now().Format(domain.DateLayout), "Purchase date (YYYY-MM-DD)")
	storeName := fs.String("store", "", "Store name")
	amount := fs.Int64("amount", 0, "Amount in yen")
	category := fs.String("category", "", "Tax category (auto-detected when empty)")
	payment := fs.String("payment", "cash", "Payment method: cash, credit_card or electronic")
	fs.Parse(os.Args[2:])

	if *storeName == "" || *amount <= 0 {
		log.Fatal().Msg("Usage: cli add -store NAME -amount YEN [-date YYYY-MM-DD]")
	}
	if _, err := time.Parse(domain.DateLayout, *date); err != nil {
		log.Fatal().Str("date", *date).Msg("Error: date must be YYYY-MM-DD")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg := config.Load()
	store := openStore(cfg, log)
	defer store.Close()

	expense := &domain.Expense{
		Date:          *date,
		StoreName:     *storeName,
		Amount:        *amount,
		Category:      *category,
		PaymentMethod: domain.ParsePaymentMethod(*payment),
		Source:        domain.SourceManual,
	}

	if expense.Category == "" {
		var picker categorize.CategoryPicker
		if client := newModelClient(ctx, cfg, log); client != nil {
			picker = client
		}
		expense.Category, expense.Subcategory = categorize.New(store, picker, log).Categorize(ctx, *storeName, "")
	}

	if err := store.SaveExpense(ctx, expense); err != nil {
		log.Fatal().Err(err).Msg("Failed to save expense")
	}

	fmt.Printf("Recorded %s %s ¥%d as %s (%s)\n",
		expense.Date, expense.StoreName, expense.Amount, expense.Category, expense.ID)
}

func runCategorize(log zerolog.Logger) {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	storeName := fs.String("store", "", "Store name")
	items := fs.String("items", "", "Space-separated item names")
	fs.Parse(os.Args[2:])

	if *storeName == "" {
		log.Fatal().Msg("Error: --store is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg := config.Load()
	store := openStore(cfg, log)
	defer store.Close()

	var picker categorize.CategoryPicker
	if client := newModelClient(ctx, cfg, log); client != nil {
		picker = client
	}

	cat, sub := categorize.New(store, picker, log).Categorize(ctx, *storeName, *items)
	if sub != nil {
		fmt.Printf("%s / %s\n", cat, *sub)
		return
	}
	fmt.Println(cat)
}

func runReport(log zerolog.Logger) {
	now := time.Now()
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	year := fs.Int("year", now.Year(), "Report year")
	month := fs.Int("month", 0, "Report month (omit for the annual report)")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	cfg := config.Load()
	store := openStore(cfg, log)
	defer store.Close()

	gen := report.New(store)

	var (
		text string
		err  error
	)
	if *month > 0 {
		text, err = gen.Monthly(ctx, *year, *month)
	} else {
		text, err = gen.Annual(ctx, *year)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Report generation failed")
	}

	fmt.Println(text)
}

func runExport(log zerolog.Logger) {
	now := time.Now()
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	year := fs.Int("year", now.Year(), "Export year")
	out := fs.String("out", "", "Output path (defaults under the data directory)")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)

	cfg := config.Load()
	store := openStore(cfg, log)
	defer store.Close()

	path := *out
	if path == "" {
		path = filepath.Join(cfg.DataDir, "reports", fmt.Sprintf("%d_annual_expense.csv", *year))
	}

	if err := report.New(store).ExportAnnualCSV(ctx, *year, path); err != nil {
		log.Fatal().Err(err).Msg("CSV export failed")
	}

	fmt.Printf("Wrote %s\n", path)
}
