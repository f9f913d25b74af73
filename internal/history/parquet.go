package history

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
}

type parquetEntry struct {
	ID            int64  `parquet:"id"`
	AskedAtUnixMs int64  `parquet:"asked_at_unix_ms"`
	Question      string `parquet:"question"`
	SQL           string `parquet:"sql"`
	Stage         string `parquet:"stage"`
	ErrorCode     string `parquet:"error_code"`
	OK            bool   `parquet:"ok"`
	Rounds        int32  `parquet:"rounds"`
	RowCount      int64  `parquet:"row_count"`
	DurationMS    int64  `parquet:"duration_ms"`
	Principal     string `parquet:"principal"`
}

// EncodeEntriesToParquet serialises entries for cold storage. The archive
// keeps everything the live row held so a pruned entry stays auditable.
func EncodeEntriesToParquet(entries []Entry) (ParquetEncodeResult, error) {
	if len(entries) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("entries are required")
	}

	rows := make([]parquetEntry, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, parquetEntry{
			ID:            entry.ID,
			AskedAtUnixMs: entry.AskedAt.UTC().UnixMilli(),
			Question:      entry.Question,
			SQL:           entry.SQL,
			Stage:         entry.Stage,
			ErrorCode:     entry.ErrorCode,
			OK:            entry.OK,
			Rounds:        int32(entry.Rounds),
			RowCount:      int64(entry.RowCount),
			DurationMS:    entry.DurationMS,
			Principal:     entry.Principal,
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEntry](buf)
	if _, err := writer.Write(rows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
	}, nil
}
