package nouns

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// SnapshotEntry is one indexed noun with its embedding vector. Snapshots let
// another instance restore the index without repeating embedding calls.
type SnapshotEntry struct {
	Table  string    `parquet:"table"`
	Column string    `parquet:"column"`
	Value  string    `parquet:"value"`
	Vector []float32 `parquet:"vector,list"`
}

func EncodeSnapshot(entries []SnapshotEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("entries are required")
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[SnapshotEntry](buf)
	if _, err := writer.Write(entries); err != nil {
		return nil, fmt.Errorf("write snapshot rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close snapshot writer: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeSnapshot(data []byte) ([]SnapshotEntry, error) {
	reader := parquet.NewGenericReader[SnapshotEntry](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	entries := make([]SnapshotEntry, reader.NumRows())
	read := 0
	for read < len(entries) {
		count, err := reader.Read(entries[read:])
		read += count
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot rows: %w", err)
		}
	}
	return entries[:read], nil
}
