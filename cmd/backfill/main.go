// Package main provides the backfill entry point for the fraud feature store.
// It replays historical transactions through the feature pipeline, either from
// a CSV export or from the ClickHouse transaction log, and persists the
// resulting snapshots.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fraud-feature-store/internal/config"
	"github.com/fraud-feature-store/internal/feature"
	"github.com/fraud-feature-store/internal/logging"
	"github.com/fraud-feature-store/internal/models"
	"github.com/fraud-feature-store/internal/service"
	"github.com/fraud-feature-store/internal/storage"
)

func main() {
	csvPath := flag.String("csv", "", "Path to a transaction CSV export; empty replays the ClickHouse log")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	pipeline := feature.NewPipeline(&feature.PipelineConfig{
		LifetimeWindowMode: cfg.Engine.LifetimeWindowMode,
		Logger:             logger,
	})

	featureService := service.NewFeatureService(&service.FeatureServiceConfig{
		Pipeline:     pipeline,
		TxnRepo:      storage.NewTransactionRepository(clickhouse),
		SnapshotRepo: storage.NewSnapshotRepository(postgres.Pool()),
		Cache:        storage.NewFeatureCache(redis, cfg.Cache.TTL),
		Logger:       logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	start := time.Now()

	if *csvPath != "" {
		txns, err := readTransactionsCSV(*csvPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to read CSV")
		}
		logger.WithField("transactions", len(txns)).Info("Loaded transactions from CSV")

		vectors, err := featureService.IngestBatch(ctx, txns)
		if err != nil {
			logger.WithError(err).Fatal("Backfill failed")
		}

		logger.WithFields(map[string]interface{}{
			"processed": len(vectors),
			"skipped":   len(txns) - len(vectors),
			"duration":  time.Since(start).String(),
		}).Info("CSV backfill complete")
		return
	}

	count, err := featureService.RebuildFromLog(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Replay failed")
	}

	published := featureService.PublishSnapshots(ctx)

	logger.WithFields(map[string]interface{}{
		"transactions": count,
		"snapshots":    published,
		"duration":     time.Since(start).String(),
	}).Info("Log replay complete")
}

// csvTimeLayouts are the timestamp formats accepted in CSV exports
var csvTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// readTransactionsCSV parses a CSV export with a header row. Column order is
// taken from the header, so exports with rearranged columns still load.
func readTransactionsCSV(path string) ([]*models.Transaction, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the operator's flag
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"transaction_id", "user_id", "card_number", "transaction_date", "transaction_amount", "has_cbk"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("CSV missing required column %q", required)
		}
	}

	var txns []*models.Transaction
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		txn, err := parseCSVRecord(record, col)
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}
		txns = append(txns, txn)
	}

	return txns, nil
}

func parseCSVRecord(record []string, col map[string]int) (*models.Transaction, error) {
	field := func(name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	userID, err := strconv.ParseInt(field("user_id"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id %q", field("user_id"))
	}

	var merchantID, deviceID int64
	if v := field("merchant_id"); v != "" {
		if merchantID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid merchant_id %q", v)
		}
	}
	if v := field("device_id"); v != "" {
		if deviceID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid device_id %q", v)
		}
	}

	date, err := parseCSVTime(field("transaction_date"))
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(field("transaction_amount"))
	if err != nil {
		return nil, fmt.Errorf("invalid transaction_amount %q", field("transaction_amount"))
	}

	hasCbk, err := parseCSVBool(field("has_cbk"))
	if err != nil {
		return nil, err
	}

	return &models.Transaction{
		TransactionID:     field("transaction_id"),
		UserID:            userID,
		CardNumber:        field("card_number"),
		MerchantID:        merchantID,
		DeviceID:          deviceID,
		TransactionDate:   date,
		TransactionAmount: amount,
		HasCbk:            hasCbk,
	}, nil
}

func parseCSVTime(value string) (time.Time, error) {
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid transaction_date %q", value)
}

func parseCSVBool(value string) (bool, error) {
	switch value {
	case "TRUE", "True", "true", "1":
		return true, nil
	case "FALSE", "False", "false", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid has_cbk %q", value)
}
