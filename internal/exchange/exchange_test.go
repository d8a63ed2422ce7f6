package exchange

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kalambet/toolshelf/internal/storage"
	"github.com/kalambet/toolshelf/internal/toolfs"
	"github.com/kalambet/toolshelf/internal/tools"
)

func init() {
	// Keep scrypt cheap in tests.
	scryptWorkFactor = 10
}

func newTestService(t *testing.T) *tools.Service {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	files, err := toolfs.New(filepath.Join(t.TempDir(), "tools"))
	if err != nil {
		t.Fatalf("creating tools dir: %v", err)
	}
	return tools.NewService(store, files)
}

func sampleRecords() []Record {
	return []Record{
		{Name: "Timer", Description: "counts down", Tags: []string{"time"}, ToolType: "html", HTMLContent: "<p>timer</p>"},
		{Name: "Notes", Tags: []string{}, ToolType: "html", HTMLContent: "<p>notes</p>"},
	}
}

func TestEncodeDecodePlain(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleRecords(), ""); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if IsEncrypted(buf.Bytes()) {
		t.Fatal("plain pack reported as encrypted")
	}

	got, skipped, err := Decode(&buf, "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(got) != 2 || got[0].Name != "Timer" || got[1].HTMLContent != "<p>notes</p>" {
		t.Errorf("records = %+v", got)
	}
	if len(got[0].Tags) != 1 || got[0].Tags[0] != "time" {
		t.Errorf("tags = %v", got[0].Tags)
	}
}

func TestEncodeDecodeEncrypted(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleRecords(), "correct horse"); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !IsEncrypted(buf.Bytes()) {
		t.Fatal("encrypted pack missing age header")
	}
	if bytes.Contains(buf.Bytes(), []byte("Timer")) {
		t.Fatal("plaintext visible in encrypted pack")
	}

	got, _, err := Decode(bytes.NewReader(buf.Bytes()), "correct horse")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	if _, _, err := Decode(bytes.NewReader(buf.Bytes()), "wrong"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("wrong passphrase: err = %v, want ErrDecrypt", err)
	}
	if _, _, err := Decode(bytes.NewReader(buf.Bytes()), ""); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("no passphrase: err = %v, want ErrPassphraseRequired", err)
	}
}

func TestDecodeSkipsInvalidEntries(t *testing.T) {
	b, err := msgpack.Marshal([]any{
		map[string]any{"name": "ok", "tool_type": "html", "html_content": "<p/>"},
		"not a record",
		map[string]any{"name": "bad tags", "tags": 42},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, skipped, err := Decode(bytes.NewReader(b), "")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "ok" {
		t.Errorf("records = %+v", got)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}

func TestDecodeMalformed(t *testing.T) {
	b, _ := msgpack.Marshal(map[string]string{"name": "x"})
	if _, _, err := Decode(bytes.NewReader(b), ""); !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
	if _, _, err := Decode(strings.NewReader(""), ""); !errors.Is(err, ErrMalformed) {
		t.Errorf("empty: err = %v, want ErrMalformed", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestService(t)
	a, err := src.Create(ctx, tools.CreateInput{Name: "Alpha", Tags: []string{"x"}, Content: "<p>alpha</p>"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := src.Create(ctx, tools.CreateInput{Name: "Beta", Content: "<p>beta</p>"})
	if err != nil {
		t.Fatal(err)
	}

	records, err := Export(ctx, src, []string{a.ID, "missing", b.ID})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("exported %d records, want 2", len(records))
	}

	var buf bytes.Buffer
	if err := Encode(&buf, records, "pw"); err != nil {
		t.Fatal(err)
	}
	decoded, _, err := Decode(&buf, "pw")
	if err != nil {
		t.Fatal(err)
	}

	dst := newTestService(t)
	res, err := Import(ctx, dst, decoded)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 2 || res.Skipped != 0 || len(res.ToolIDs) != 2 {
		t.Fatalf("result = %+v", res)
	}
	tool, content, err := dst.ReadContent(ctx, res.ToolIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if tool.Name != "Alpha" || string(content) != "<p>alpha</p>" || tool.Version != 1 {
		t.Errorf("imported tool = %+v content %q", tool, content)
	}
}

func TestExportNothingFound(t *testing.T) {
	svc := newTestService(t)
	if _, err := Export(context.Background(), svc, []string{"nope"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestImportSkipsInvalidRecords(t *testing.T) {
	svc := newTestService(t)
	res, err := Import(context.Background(), svc, []Record{
		{Name: "", HTMLContent: "<p/>"},
		{Name: "Empty", HTMLContent: "   "},
		{Name: "Kind", ToolType: "flash", HTMLContent: "<p/>"},
		{Name: "Good", HTMLContent: "<p>good</p>"},
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 1 || res.Skipped != 3 {
		t.Errorf("result = %+v, want 1 imported and 3 skipped", res)
	}
}
