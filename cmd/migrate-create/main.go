package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var namePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

func main() {
	dir := flag.String("dir", filepath.Join("db", "migrations"), "migrations directory")
	flag.Parse()

	name := flag.Arg(0)
	if name == "" {
		log.Fatal("usage: migrate-create [-dir path] <name>")
	}
	if !namePattern.MatchString(name) {
		log.Fatal("migration name must be lowercase letters, digits and underscores")
	}

	version := time.Now().UTC().Format("20060102150405")
	base := filepath.Join(*dir, fmt.Sprintf("%s_%s", version, name))

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatalf("create migrations dir: %v", err)
	}
	for _, suffix := range []string{".up.sql", ".down.sql"} {
		path := base + suffix
		if _, err := os.Stat(path); err == nil {
			log.Fatalf("file already exists: %s", path)
		} else if !os.IsNotExist(err) {
			log.Fatalf("stat %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte("-- "+name+"\n"), 0o644); err != nil {
			log.Fatalf("write %s: %v", path, err)
		}
	}
	log.Printf("created %s.{up,down}.sql", base)
}
