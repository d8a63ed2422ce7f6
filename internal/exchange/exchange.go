// Package exchange moves tools between installations as a msgpack array of
// records, optionally encrypted to a passphrase with age.
package exchange

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kalambet/toolshelf/internal/storage"
	"github.com/kalambet/toolshelf/internal/tools"
)

// MaxPackBytes bounds the decoded size of an import.
const MaxPackBytes = 64 << 20

// ContentType is the media type of an unencrypted pack.
const ContentType = "application/x-msgpack"

const ageHeader = "age-encryption.org/"

var (
	ErrMalformed          = errors.New("malformed tool pack")
	ErrPassphraseRequired = errors.New("tool pack is encrypted, a passphrase is required")
	ErrDecrypt            = errors.New("cannot decrypt tool pack")
	ErrTooLarge           = errors.New("tool pack is too large")
)

// scryptWorkFactor is the age scrypt cost used when encrypting. Zero keeps
// the library default.
var scryptWorkFactor = 0

// Record is one tool inside a pack.
type Record struct {
	Name        string   `msgpack:"name"`
	Description string   `msgpack:"description"`
	Tags        []string `msgpack:"tags"`
	ToolType    string   `msgpack:"tool_type"`
	HTMLContent string   `msgpack:"html_content"`
}

// Encode writes records to w, encrypting when passphrase is not empty.
func Encode(w io.Writer, records []Record, passphrase string) error {
	if records == nil {
		records = []Record{}
	}
	b, err := msgpack.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding pack: %w", err)
	}
	if passphrase == "" {
		_, err := w.Write(b)
		return err
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if scryptWorkFactor > 0 {
		recipient.SetWorkFactor(scryptWorkFactor)
	}
	enc, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := enc.Write(b); err != nil {
		return fmt.Errorf("encrypting pack: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// IsEncrypted reports whether the stream starts with an age header.
func IsEncrypted(prefix []byte) bool {
	return bytes.HasPrefix(prefix, []byte(ageHeader))
}

// Decode reads a pack. Entries that do not decode as a Record are counted
// in skipped rather than failing the whole pack.
func Decode(r io.Reader, passphrase string) (records []Record, skipped int, err error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(ageHeader))

	var src io.Reader = br
	if IsEncrypted(head) {
		if passphrase == "" {
			return nil, 0, ErrPassphraseRequired
		}
		identity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return nil, 0, fmt.Errorf("creating scrypt identity: %w", err)
		}
		dec, err := age.Decrypt(br, identity)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrDecrypt, err)
		}
		src = dec
	}

	b, err := io.ReadAll(io.LimitReader(src, MaxPackBytes+1))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(b) > MaxPackBytes {
		return nil, 0, ErrTooLarge
	}

	var raw []msgpack.RawMessage
	if err := msgpack.Unmarshal(b, &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, item := range raw {
		var rec Record
		if err := msgpack.Unmarshal(item, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

// Source reads tools for export.
type Source interface {
	ReadContent(ctx context.Context, id string) (storage.Tool, []byte, error)
}

// Sink creates imported tools.
type Sink interface {
	Create(ctx context.Context, in tools.CreateInput) (storage.Tool, error)
}

// Export collects the given tools. Unknown ids are skipped; if none of them
// exist the result is storage.ErrNotFound.
func Export(ctx context.Context, src Source, ids []string) ([]Record, error) {
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		tool, content, err := src.ReadContent(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("exporting tool %s: %w", id, err)
		}
		records = append(records, Record{
			Name:        tool.Name,
			Description: tool.Description,
			Tags:        tool.Tags,
			ToolType:    tool.ToolType,
			HTMLContent: string(content),
		})
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no exportable tools: %w", storage.ErrNotFound)
	}
	return records, nil
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int      `json:"imported_count"`
	Skipped  int      `json:"skipped_count"`
	ToolIDs  []string `json:"tool_ids"`
}

// Import creates a tool per record. Records that fail validation are
// skipped; any other error stops the import.
func Import(ctx context.Context, sink Sink, records []Record) (ImportResult, error) {
	res := ImportResult{ToolIDs: []string{}}
	for _, rec := range records {
		tool, err := sink.Create(ctx, tools.CreateInput{
			Name:        rec.Name,
			Description: rec.Description,
			Tags:        rec.Tags,
			ToolType:    rec.ToolType,
			Content:     rec.HTMLContent,
		})
		var verr *tools.ValidationError
		if errors.As(err, &verr) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Imported++
		res.ToolIDs = append(res.ToolIDs, tool.ID)
	}
	return res, nil
}
