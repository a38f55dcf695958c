//go:build ignore

// Command generate_sample_codes writes redeem code files for the bulk
// import endpoint. Run with: go run scripts/generate_sample_codes.go
package main

import (
	"compress/gzip"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func main() {
	dataDir := flag.String("dir", "data/redeem-codes", "output directory")
	cards := flag.String("cards", "CARD001,CARD002,CARD003", "comma-separated card ids")
	count := flag.Int("count", 100, "codes per card")
	flag.Parse()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	for i, cardID := range strings.Split(*cards, ",") {
		cardID = strings.TrimSpace(cardID)
		if cardID == "" {
			continue
		}

		codes := make([]string, *count)
		for j := range codes {
			codes[j] = randomCode(10)
		}

		// Alternate plain and gzip files; the loader accepts both
		name := strings.ToLower(cardID) + ".txt"
		if i%2 == 1 {
			name += ".gz"
		}
		filePath := filepath.Join(*dataDir, name)

		if err := writeCodeFile(filePath, codes); err != nil {
			log.Fatalf("Failed to create %s: %v", filePath, err)
		}

		fmt.Printf("Created %s with %d codes for card %s\n", filePath, len(codes), cardID)
	}

	fmt.Println("\nImport a file with:")
	fmt.Println(`  curl -X POST localhost:8080/api/redeem-codes/import \`)
	fmt.Println(`    -H "X-API-Key: $API_KEY" -H "Content-Type: application/json" \`)
	fmt.Printf("    -d '{\"cardId\":\"CARD001\",\"source\":\"%s\"}'\n", filepath.Join(*dataDir, "card001.txt"))
}

func randomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

func writeCodeFile(filePath string, codes []string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	var w io.Writer = file
	if strings.HasSuffix(filePath, ".gz") {
		gzipWriter := gzip.NewWriter(file)
		defer gzipWriter.Close()
		w = gzipWriter
	}

	for _, code := range codes {
		if _, err := fmt.Fprintf(w, "%s\n", code); err != nil {
			return fmt.Errorf("failed to write code: %w", err)
		}
	}

	return nil
}
