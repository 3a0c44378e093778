package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"shiritori/internal/config"
	"shiritori/internal/db"
	"shiritori/internal/server"
)

func main() {
	filePath := flag.String("file", "words.txt", "path to newline-separated word list")
	locale := flag.String("locale", db.DefaultLocale, "dictionary locale")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer logger.Sync()

	conn, err := db.Open()
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	if err := db.Migrate(conn); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	words, err := readWords(*filePath)
	if err != nil {
		logger.Fatal("failed to read word list", zap.String("file", *filePath), zap.Error(err))
	}

	srv := server.New(conn, config.Load(), logger)
	inserted, err := srv.LoadDictionary(*locale, words)
	if err != nil {
		logger.Fatal("dictionary load failed", zap.Error(err))
	}
	logger.Info("dictionary loaded",
		zap.String("locale", *locale),
		zap.Int("read", len(words)),
		zap.Int("inserted", inserted))
}

func readWords(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			words = append(words, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return words, nil
}
