package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/sergio-nunez-meneses/realTimeKeypointDetection/internal/output"
)

func main() {
	var (
		path    = flag.String("path", "", "Path to rawlog .bin file")
		limit   = flag.Int("limit", 0, "Number of records to dump (0 = all)")
		address = flag.String("address", "", "Only dump records with this address")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open rawlog: %v", err)
	}
	defer f.Close()

	reader, err := output.NewRawLogReader(f)
	if err != nil {
		log.Fatalf("read rawlog: %v", err)
	}
	log.Printf("run %s", reader.RunID())

	count := 0
	for {
		if *limit > 0 && count >= *limit {
			return
		}
		rec, err := reader.Next()
		if err == io.EOF {
			return
		}
		if errors.Is(err, output.ErrCorruptRecord) {
			log.Printf("%v", err)
			continue
		}
		if err != nil {
			log.Fatalf("read rawlog: %v", err)
		}
		if *address != "" && rec.Entry.Address != *address {
			continue
		}

		normalized := output.NormalizeJSONValue(map[string]any{
			"dir":     rec.Entry.Direction,
			"address": rec.Entry.Address,
			"args":    rec.Entry.Args,
		})
		pretty, err := json.MarshalIndent(normalized, "", "  ")
		if err != nil {
			log.Printf("record %d: JSON encode error: %v", rec.Index, err)
			continue
		}

		log.Printf("record %d timestamp=%s size=%d", rec.Index, rec.Timestamp.Format(time.RFC3339Nano), rec.Size)
		fmt.Println(string(pretty))
		count++
	}
}
