package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/pgzip"

	"flared/config"
	"flared/observation"
	"flared/sqliteutil"
)

func main() {
	csvFlag := flag.String("csv", "data/flare_vlf.csv", "Flare sheet CSV to import (.gz accepted)")
	configFlag := flag.String("config", "", "flarED config; supplies the default database and table")
	dbFlag := flag.String("db", "", "Target SQLite database (defaults to data.database)")
	tableFlag := flag.String("table", "", "Target table (defaults to data.table)")
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.LUTC)

	cfg, err := config.Load(config.ResolvePath(*configFlag))
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	dbPath := firstNonEmpty(*dbFlag, cfg.Data.Database)
	table := firstNonEmpty(*tableFlag, cfg.Data.Table)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := importFile(ctx, *csvFlag, dbPath, table)
	if err != nil {
		log.Fatal(err)
	}
	pre, err := sqliteutil.Preflight(dbPath, res.Table, 10*time.Second, log.Printf)
	if err != nil {
		log.Fatalf("Imported database failed preflight: %v", err)
	}
	fmt.Printf("Imported %s rows into %s (table %s, %s rows after preflight)\n",
		humanize.Comma(int64(res.Rows)), dbPath, res.Table, humanize.Comma(pre.Rows))
}

func importFile(ctx context.Context, csvPath, dbPath, table string) (observation.ImportResult, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return observation.ImportResult{}, fmt.Errorf("open %s: %w", csvPath, err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(csvPath), ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return observation.ImportResult{}, fmt.Errorf("gzip %s: %w", csvPath, err)
		}
		defer gz.Close()
		r = gz
	}
	return observation.Import(ctx, dbPath, table, r)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
