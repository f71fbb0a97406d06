// Command analyzer runs one offline chatroom-analysis pass: load a day's
// messages, classify/merge/summarize topics per chatroom, rank by
// popularity, and write a Markdown report (spec §4.8, §6.4).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sqrtqiezi/diting-analyzer/internal/analyzer"
	"github.com/sqrtqiezi/diting-analyzer/internal/config"
	"github.com/sqrtqiezi/diting-analyzer/internal/debugwriter"
	"github.com/sqrtqiezi/diting-analyzer/internal/formatter"
	"github.com/sqrtqiezi/diting-analyzer/internal/llmclient"
	"github.com/sqrtqiezi/diting-analyzer/internal/observability"
	"github.com/sqrtqiezi/diting-analyzer/internal/ocrcache"
	"github.com/sqrtqiezi/diting-analyzer/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the analyzer's YAML config file")
	dateStr := flag.String("date", time.Now().UTC().Format("2006-01-02"), "date to analyze, YYYY-MM-DD")
	chatroomsFlag := flag.String("chatrooms", "", "comma-separated chatroom ids to restrict analysis to (default: all)")
	outPath := flag.String("out", "", "write the report to this path instead of stdout")
	logPath := flag.String("log-file", "", "write logs to this path instead of stderr")
	flag.Parse()

	date, err := time.Parse("2006-01-02", *dateStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyzer: invalid -date %q: %v\n", *dateStr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyzer: configuration error: %v\n", err)
		os.Exit(2)
	}

	observability.InitLogger(*logPath, cfg.LogLevel)

	var chatrooms []string
	if strings.TrimSpace(*chatroomsFlag) != "" {
		for _, c := range strings.Split(*chatroomsFlag, ",") {
			if c = strings.TrimSpace(c); c != "" {
				chatrooms = append(chatrooms, c)
			}
		}
	}

	ctx := context.Background()

	s, err := store.Open(ctx, store.Config{DSN: os.Getenv("CLICKHOUSE_DSN")})
	if err != nil {
		log.Fatal().Err(err).Msg("analyzer: failed to open columnar store")
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Msg("analyzer: error closing store")
		}
	}()

	var ocr formatter.OCRCache
	if cfg.OCR.RedisAddr != "" {
		cache, err := ocrcache.NewRedisCache(ctx, ocrcache.RedisConfig{
			Addr:     cfg.OCR.RedisAddr,
			Password: cfg.OCR.RedisPassword,
			DB:       cfg.OCR.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("analyzer: OCR cache unavailable, continuing without OCR enrichment")
		} else {
			ocr = cache
			defer cache.Close()
		}
	}

	provider := llmclient.Build(cfg.LLM)
	debug := debugwriter.New(cfg.Debug.Directory)
	a := analyzer.New(cfg, provider, ocr, debug)

	result, err := a.Run(ctx, s, date, chatrooms, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("analyzer: run failed")
		os.Exit(1)
	}

	log.Info().Int("chatrooms_ok", result.ChatroomsOK).Int("chatrooms_failed", result.ChatroomsFailed).Msg("analysis complete")

	if *outPath == "" {
		fmt.Println(result.Report)
		return
	}
	if err := os.WriteFile(*outPath, []byte(result.Report), 0o644); err != nil {
		log.Fatal().Err(err).Str("path", *outPath).Msg("analyzer: failed to write report")
	}
}
