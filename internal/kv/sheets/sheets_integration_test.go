//go:build integration

package sheets

import (
	"context"
	"os"
	"testing"
	"time"
)

// Integration tests require a real spreadsheet and service account.
// Run with: go test -tags=integration ./internal/kv/sheets

func TestIntegration_SheetsStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	credsFile := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")
	if spreadsheetID == "" || credsFile == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID or GOOGLE_SERVICE_ACCOUNT_FILE not set, skipping integration test")
	}
	creds, err := os.ReadFile(credsFile)
	if err != nil {
		t.Fatalf("Failed to read credentials: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, err := NewWithCredentials(ctx, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME"), creds)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	key := "integration-" + time.Now().Format("20060102150405")
	if err := c.Set(ctx, key, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	got, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Failed to read back %s: ok=%v err=%v", key, ok, err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("Unexpected value: %s", got)
	}
}
