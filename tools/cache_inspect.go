package main

import (
	"chat-link/domain"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "", "Path to the conversation cache (CHAT_CACHE_PATH)")
	prefix := flag.String("prefix", "conv:", "Prefix to scan")
	flag.Parse()
	if *dbPath == "" {
		log.Fatal("-db is required, an in-memory cache cannot be inspected")
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Status", "Last message", "Messages", "History", "Expires", "Last content"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				var c domain.Conversation
				if err := json.Unmarshal(v, &c); err != nil {
					// Skip the entry, keep scanning
					fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
					return nil
				}

				last := "-"
				if c.LastMessageAt != nil {
					last = c.LastMessageAt.Local().Format(time.DateTime)
				}
				expires := "never"
				if at := item.ExpiresAt(); at > 0 {
					expires = time.Unix(int64(at), 0).Local().Format("15:04:05")
				}
				history := "summary"
				if c.HistoryLoaded {
					history = "loaded"
				}
				content := ""
				if n := len(c.Messages); n > 0 {
					content = c.Messages[n-1].Content
					if r := []rune(content); len(r) > 40 {
						content = string(r[:40]) + "..."
					}
				}

				table.Append([]string{key, string(c.Status), last, strconv.Itoa(len(c.Messages)), history, expires, content})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A cache left by a killed client needs a writable open to truncate its log
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
