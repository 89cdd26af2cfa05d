// Package universe resolves the list of symbols a screen runs over.
package universe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"EMAScreener/internal/logging"
)

// ErrEmpty is returned when a source yields no symbols.
var ErrEmpty = errors.New("universe is empty")

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// Source describes where symbols come from. Inline symbols, a file and a
// scraped HTML table are merged in that order.
type Source struct {
	Symbols  []string
	File     string
	URL      string
	Selector string // CSS selector of the table rows, e.g. "table#constituents tbody tr"
	Column   int    // zero-based cell index holding the symbol
}

// Loader resolves a Source into symbols.
type Loader struct {
	Client *http.Client
	Logger *zap.Logger
}

func NewLoader(client *http.Client, logger *zap.Logger) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{Client: client, Logger: logging.OrNop(logger)}
}

// Load returns the normalized, de-duplicated symbols of src in source order.
func (l *Loader) Load(ctx context.Context, src Source) ([]string, error) {
	var raw []string
	raw = append(raw, src.Symbols...)

	if src.File != "" {
		f, err := os.Open(src.File)
		if err != nil {
			return nil, fmt.Errorf("open universe file: %w", err)
		}
		syms, err := ParseList(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read universe file: %w", err)
		}
		raw = append(raw, syms...)
	}

	if src.URL != "" {
		syms, err := l.scrape(ctx, src)
		if err != nil {
			return nil, err
		}
		raw = append(raw, syms...)
	}

	out := Normalize(raw)
	if dropped := len(raw) - len(out); dropped > 0 {
		l.Logger.Debug("dropped invalid or duplicate symbols", zap.Int("dropped", dropped))
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	l.Logger.Info("universe loaded", zap.Int("symbols", len(out)))
	return out, nil
}

func (l *Loader) scrape(ctx context.Context, src Source) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; EMAScreener/1.0)")

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch universe page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch universe page: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse universe page: %w", err)
	}
	return ExtractTable(doc, src.Selector, src.Column), nil
}

// ExtractTable reads the text of cell column from every row matching selector.
// Rows without that cell (header rows built from th) are ignored.
func ExtractTable(doc *goquery.Document, selector string, column int) []string {
	var out []string
	doc.Find(selector).Each(func(_ int, row *goquery.Selection) {
		cell := row.Find("td").Eq(column)
		if cell.Length() == 0 {
			return
		}
		if text := strings.TrimSpace(cell.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// ParseList reads symbols separated by newlines or commas. Text after '#'
// on a line is a comment.
func ParseList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, s := range strings.Split(line, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out, sc.Err()
}

// Normalize upper-cases symbols, drops anything that does not look like a
// ticker and keeps the first occurrence of each.
func Normalize(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if !symbolPattern.MatchString(s) || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
