package importer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/expensebot/internal/infra/sqlite"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/japanese"
)

const csvHeader = "計算対象,日付,内容,金額（円）,保有金融機関,大項目,中項目,メモ,振替,ID"

func testStore(t *testing.T) *sqlite.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mf.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestImport(t *testing.T) {
	store := testStore(t)
	imp := New(store, zerolog.New(io.Discard))
	ctx := context.Background()

	content := strings.Join([]string{
		csvHeader,
		`1,2024/03/10,Coffee Shop,"-500",三井住友カード,食費,カフェ,,0,TX1`,
		`1,2024-03-11,Bookstore,"-1,234",三井住友カード,教養,書籍,,0,TX2`,
		`1,2024年03月12日,Taxi,-2000,三井住友カード,交通,タクシー,,0,TX3`,
		`1,2024/03/13,Empty ID row,-100,,,,,0,`,
		`1,bad-date,Broken date,-100,,,,,0,TX4`,
		`1,2024/03/14,Broken amount,abc,,,,,0,TX5`,
		`1,2024/03/15,振替行,-300,,,,,1,TX6`,
	}, "\n") + "\n"

	res, err := imp.Import(ctx, writeCSV(t, content))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if res.Imported != 4 {
		t.Errorf("Imported = %d, want 4", res.Imported)
	}
	if res.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3 (empty ID, bad date, bad amount)", res.Skipped)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("Errors = %v, want 2 entries", res.Errors)
	}
	if !strings.Contains(res.Errors[0], "TX4") {
		t.Errorf("first error should reference TX4: %q", res.Errors[0])
	}
	if !strings.Contains(res.Errors[1], "TX5") {
		t.Errorf("second error should reference TX5: %q", res.Errors[1])
	}

	tx, err := store.GetLedgerTransaction(ctx, "TX2")
	if err != nil {
		t.Fatalf("GetLedgerTransaction: %v", err)
	}
	if tx.Amount != -1234 {
		t.Errorf("TX2 amount = %d, want -1234 (thousands separator)", tx.Amount)
	}
	if tx.Date != "2024-03-11" {
		t.Errorf("TX2 date = %q, want 2024-03-11", tx.Date)
	}

	tx3, err := store.GetLedgerTransaction(ctx, "TX3")
	if err != nil {
		t.Fatalf("GetLedgerTransaction TX3: %v", err)
	}
	if tx3.Date != "2024-03-12" {
		t.Errorf("TX3 date = %q, want 2024-03-12 (localized form normalized)", tx3.Date)
	}

	tx6, err := store.GetLedgerTransaction(ctx, "TX6")
	if err != nil {
		t.Fatalf("GetLedgerTransaction TX6: %v", err)
	}
	if !tx6.IsTransfer {
		t.Error("TX6 should carry is_transfer=true")
	}
}

func TestImportToleratesStrayQuote(t *testing.T) {
	store := testStore(t)
	imp := New(store, zerolog.New(io.Discard))
	ctx := context.Background()

	content := strings.Join([]string{
		csvHeader,
		`1,2024/03/10,Coffee Shop,-500,,,,,0,TX1`,
		`1,2024/03/11,Bad "Quote Row,-300,,,,,0,TX2`,
		`1,2024/03/12,Taxi,-2000,,,,,0,TX3`,
	}, "\n") + "\n"

	res, err := imp.Import(ctx, writeCSV(t, content))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 3 {
		t.Fatalf("Imported = %d, want 3 (a stray quote must not stop the import), errors: %v",
			res.Imported, res.Errors)
	}

	tx2, err := store.GetLedgerTransaction(ctx, "TX2")
	if err != nil {
		t.Fatalf("GetLedgerTransaction TX2: %v", err)
	}
	if !strings.Contains(tx2.Description, `"Quote`) {
		t.Errorf("TX2 description = %q, want the literal quote preserved", tx2.Description)
	}

	if _, err := store.GetLedgerTransaction(ctx, "TX3"); err != nil {
		t.Errorf("row after the quoted one was lost: %v", err)
	}
}

func TestImportIdempotent(t *testing.T) {
	store := testStore(t)
	imp := New(store, zerolog.New(io.Discard))
	ctx := context.Background()

	content := strings.Join([]string{
		csvHeader,
		`1,2024/03/10,Coffee Shop,-500,,,,,0,TX1`,
		`1,2024/03/11,Bookstore,-1200,,,,,0,TX2`,
	}, "\n") + "\n"
	path := writeCSV(t, content)

	first, err := imp.Import(ctx, path)
	if err != nil {
		t.Fatalf("first Import: %v", err)
	}
	if first.Imported != 2 || first.Skipped != 0 {
		t.Fatalf("first import = %+v, want 2 imported", first)
	}

	second, err := imp.Import(ctx, path)
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if second.Imported != 0 {
		t.Errorf("second import imported = %d, want 0", second.Imported)
	}
	if second.Skipped != 2 {
		t.Errorf("second import skipped = %d, want 2", second.Skipped)
	}
}

func TestImportShiftJIS(t *testing.T) {
	store := testStore(t)
	imp := New(store, zerolog.New(io.Discard))
	ctx := context.Background()

	content := strings.Join([]string{
		csvHeader,
		`1,2024/03/10,スターバックス,-680,三井住友カード,食費,カフェ,打ち合わせ,0,SJIS1`,
	}, "\n") + "\n"

	encoded, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(content))
	if err != nil {
		t.Fatalf("encode shift-jis: %v", err)
	}
	path := filepath.Join(t.TempDir(), "sjis.csv")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	res, err := imp.Import(ctx, path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 1 {
		t.Fatalf("Imported = %d, want 1", res.Imported)
	}

	tx, err := store.GetLedgerTransaction(ctx, "SJIS1")
	if err != nil {
		t.Fatalf("GetLedgerTransaction: %v", err)
	}
	if tx.Description != "スターバックス" {
		t.Errorf("description = %q, want スターバックス", tx.Description)
	}
}

func TestImportUndetectableEncoding(t *testing.T) {
	store := testStore(t)
	imp := New(store, zerolog.New(io.Discard))

	path := filepath.Join(t.TempDir(), "garbage.csv")
	if err := os.WriteFile(path, []byte{0xFF, 0xFE, 0x00, 0x81, 0xAD, 0xDE}, 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	if _, err := imp.Import(context.Background(), path); err == nil {
		t.Error("expected an encoding error for undecodable bytes")
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1,234", 1234, false},
		{"-1,234", -1234, false},
		{"500", 500, false},
		{"", 0, false},
		{"abc", 0, true},
		{"1,2a4", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAmount(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseAmount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024/03/10", "2024-03-10", true},
		{"2024-03-10", "2024-03-10", true},
		{"2024年03月10日", "2024-03-10", true},
		{"2024年3月5日", "2024-03-05", true},
		{"", "", false},
		{"10/03/2024", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizeDate(tt.in)
			if ok != tt.ok {
				t.Fatalf("normalizeDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("normalizeDate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFlag(t *testing.T) {
	trues := []string{"1", "○", "true", "True", "TRUE"}
	for _, s := range trues {
		if !parseFlag(s) {
			t.Errorf("parseFlag(%q) = false, want true", s)
		}
	}
	falses := []string{"0", "", "no", "×"}
	for _, s := range falses {
		if parseFlag(s) {
			t.Errorf("parseFlag(%q) = true, want false", s)
		}
	}
}
