// Package dedup tracks which canonical URLs have already been committed to
// an output stream. The sink itself is the source of truth; the ledger is a
// cache reconstructed from it at run start, scoped to one run and passed
// explicitly into whoever emits records.
package dedup

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Ledger is a seen-set of canonical URLs. Not safe for concurrent use; the
// walker is sequential and the detail fetcher resolves its pending set
// before starting workers.
type Ledger struct {
	seen map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

type urlRow struct {
	URL string `json:"url"`
}

// Load seeds the ledger from newline-delimited JSON records, reading the
// "url" field of each line. Malformed lines are skipped, not fatal. Returns
// the number of URLs added.
func (l *Ledger) Load(r io.Reader) int {
	added := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row urlRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		url := strings.TrimSpace(row.URL)
		if url == "" {
			continue
		}
		if _, ok := l.seen[url]; !ok {
			l.seen[url] = struct{}{}
			added++
		}
	}
	return added
}

// LoadFile seeds the ledger from a sink file. A missing file adds nothing.
func (l *Ledger) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open sink %q: %w", path, err)
	}
	defer f.Close()
	return l.Load(f), nil
}

// ShouldEmit reports whether the URL has not been emitted yet, and marks it
// seen in the same step: for any URL it returns true at most once per
// ledger lifetime, even when the URL repeats on a single page.
func (l *Ledger) ShouldEmit(url string) bool {
	if _, ok := l.seen[url]; ok {
		return false
	}
	l.seen[url] = struct{}{}
	return true
}

// MarkSeen records a URL without the emit check, for seeding.
func (l *Ledger) MarkSeen(url string) {
	l.seen[url] = struct{}{}
}

// Seen reports membership without marking.
func (l *Ledger) Seen(url string) bool {
	_, ok := l.seen[url]
	return ok
}

// URLs returns the tracked URLs in sorted order.
func (l *Ledger) URLs() []string {
	out := make([]string, 0, len(l.seen))
	for url := range l.seen {
		out = append(out, url)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of tracked URLs.
func (l *Ledger) Len() int {
	return len(l.seen)
}
