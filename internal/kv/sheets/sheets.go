// Package sheets stores key-value entries in a Google Sheets tab: the key in
// column A, the value in column B. Values longer than one cell allows are
// split over consecutive rows carrying the same key.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"walletflow/internal/kv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Store"

// chunkBytes keeps every cell under the 50,000 character limit of a Sheets
// cell. Bytes never undercount characters.
const chunkBytes = 40000

var _ kv.Store = (*Client)(nil)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

// New wraps an existing Sheets service. Mostly useful with option.WithEndpoint
// in tests.
func New(ctx context.Context, spreadsheetID, sheet string, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheet) == "" {
		sheet = defaultSheetName
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

// NewWithCredentials authenticates with a service account key. Token and API
// requests share the pooled transport.
func NewWithCredentials(ctx context.Context, spreadsheetID, sheet string, credentialsJSON []byte) (*Client, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	// The authorized client outlives ctx, so it gets its own.
	authCtx := context.WithValue(context.Background(), oauth2.HTTPClient, newHTTPClientWithPooling())
	return New(ctx, spreadsheetID, sheet, goption.WithHTTPClient(conf.Client(authCtx)))
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

func (c *Client) columns() string {
	return fmt.Sprintf("%s!A:B", c.sheet)
}

// readRows returns column A/B pairs; row i of the slice is sheet row i+1.
func (c *Client) readRows(ctx context.Context) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.columns()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.columns(), err)
	}
	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rows[i] = toStrings(row)
	}
	return rows, nil
}

// Get joins column B of every row holding key, in sheet order.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	rows, err := c.readRows(ctx)
	if err != nil {
		return nil, false, err
	}
	idx := rowsOfKey(rows, key)
	if len(idx) == 0 {
		return nil, false, nil
	}
	var b strings.Builder
	for _, i := range idx {
		b.WriteString(safeGet(rows[i], 1))
	}
	return []byte(b.String()), true, nil
}

// Set stores value under key. When the value needs as many rows as the key
// already holds, those rows are overwritten in place; a new key is appended.
// Otherwise the tab is rewritten with the key's rows moved to the end.
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	rows, err := c.readRows(ctx)
	if err != nil {
		return err
	}
	entry := keyRows(key, splitValue(value))
	idx := rowsOfKey(rows, key)

	switch {
	case len(idx) == 0:
		return c.appendRows(ctx, entry)
	case len(idx) == len(entry) && contiguous(idx):
		rng := fmt.Sprintf("%s!A%d:B%d", c.sheet, idx[0]+1, idx[len(idx)-1]+1)
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: entry}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update %s: %w", rng, err)
		}
		return nil
	}

	kept := make([][]interface{}, 0, len(rows)+len(entry))
	for _, row := range rows {
		k := strings.TrimSpace(safeGet(row, 0))
		if k == "" || k == key {
			continue
		}
		kept = append(kept, []interface{}{k, safeGet(row, 1)})
	}
	if err := c.Clear(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Sheet rewritten", "key", key, "rows", len(entry), "sheet", c.sheet)
	return c.appendRows(ctx, append(kept, entry...))
}

func (c *Client) appendRows(ctx context.Context, rows [][]interface{}) error {
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.columns(), &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %d rows: %w", len(rows), err)
	}
	return nil
}

func (c *Client) Clear(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, c.columns(), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", c.columns(), err)
	}
	return nil
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func rowsOfKey(rows [][]string, key string) []int {
	var idx []int
	for i, row := range rows {
		if strings.TrimSpace(safeGet(row, 0)) == key {
			idx = append(idx, i)
		}
	}
	return idx
}

func contiguous(idx []int) bool {
	for i := 1; i < len(idx); i++ {
		if idx[i] != idx[i-1]+1 {
			return false
		}
	}
	return true
}

// splitValue cuts value into chunks of at most chunkBytes, on rune
// boundaries. An empty value yields one empty chunk.
func splitValue(value []byte) []string {
	if len(value) <= chunkBytes {
		return []string{string(value)}
	}
	var chunks []string
	for len(value) > 0 {
		n := min(chunkBytes, len(value))
		for n < len(value) && n > 0 && !utf8.RuneStart(value[n]) {
			n--
		}
		chunks = append(chunks, string(value[:n]))
		value = value[n:]
	}
	return chunks
}

func keyRows(key string, chunks []string) [][]interface{} {
	rows := make([][]interface{}, len(chunks))
	for i, chunk := range chunks {
		rows[i] = []interface{}{key, chunk}
	}
	return rows
}

func safeGet(arr []string, idx int) string {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return ""
}
