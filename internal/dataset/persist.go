package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"tripetl/internal/record"
	"tripetl/internal/schema"
)

// parquetTrip is the columnar on-disk shape of one canonical record.
// Field order mirrors schema.Columns exactly; optional fields are
// pointers so missing markers survive the round trip.
type parquetTrip struct {
	RideID           *string  `parquet:"name=ride_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RideableType     *string  `parquet:"name=rideable_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartedAt        *int64   `parquet:"name=started_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	EndedAt          *int64   `parquet:"name=ended_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	StartStationID   *string  `parquet:"name=start_station_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartStationName *string  `parquet:"name=start_station_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	EndStationID     *string  `parquet:"name=end_station_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	EndStationName   *string  `parquet:"name=end_station_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartLat         *float64 `parquet:"name=start_lat, type=DOUBLE"`
	StartLng         *float64 `parquet:"name=start_lng, type=DOUBLE"`
	EndLat           *float64 `parquet:"name=end_lat, type=DOUBLE"`
	EndLng           *float64 `parquet:"name=end_lng, type=DOUBLE"`
	MemberCasual     *string  `parquet:"name=member_casual, type=BYTE_ARRAY, convertedtype=UTF8"`
	DurationSec      *int64   `parquet:"name=duration_sec, type=INT64"`
}

// atomicWrite runs write against a temp path next to target, then renames
// into place. A failure leaves any prior artifact at target untouched.
func atomicWrite(target string, write func(tmp string) error) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}
	tmp := target + ".tmp-" + uuid.NewString()[:8]
	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// WriteParquet persists the accepted set as one columnar file in
// canonical field order, atomically.
func (s *Scope) WriteParquet(target string) error {
	rows := s.Accepted()
	return atomicWrite(target, func(tmp string) error {
		fw, err := local.NewLocalFileWriter(tmp)
		if err != nil {
			return fmt.Errorf("open parquet writer: %w", err)
		}

		pw, err := writer.NewParquetWriter(fw, new(parquetTrip), 4)
		if err != nil {
			_ = fw.Close()
			return fmt.Errorf("init parquet writer: %w", err)
		}
		pw.CompressionType = parquet.CompressionCodec_SNAPPY

		for _, r := range rows {
			if err := pw.Write(toParquet(r)); err != nil {
				_ = fw.Close()
				return fmt.Errorf("write parquet row (%s:%d): %w", r.File, r.Line, err)
			}
		}
		if err := pw.WriteStop(); err != nil {
			_ = fw.Close()
			return fmt.Errorf("finish parquet: %w", err)
		}
		return fw.Close()
	})
}

// ReadParquet loads a persisted columnar artifact back into canonical
// rows, preserving record count, field set, and field order.
func ReadParquet(path string) ([]*record.Row, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(parquetTrip), 4)
	if err != nil {
		return nil, fmt.Errorf("init parquet reader: %w", err)
	}
	defer pr.ReadStop()

	total := int(pr.GetNumRows())
	out := make([]*record.Row, 0, total)
	const chunk = 4096
	for read := 0; read < total; {
		n := chunk
		if total-read < n {
			n = total - read
		}
		buf := make([]parquetTrip, n)
		if err := pr.Read(&buf); err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		for i := range buf {
			out = append(out, fromParquet(&buf[i]))
		}
		read += n
	}
	return out, nil
}

// WriteCSV persists the accepted set as the row-oriented interchange
// artifact, atomically. The header is the canonical column list.
func (s *Scope) WriteCSV(target string) error {
	rows := s.Accepted()
	return atomicWrite(target, func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("create csv: %w", err)
		}

		w := csv.NewWriter(f)
		if err := w.Write(schema.Names()); err != nil {
			_ = f.Close()
			return err
		}

		rec := make([]string, schema.NumCols)
		for _, r := range rows {
			for col := 0; col < schema.NumCols; col++ {
				rec[col] = formatCell(r.V[col])
			}
			if err := w.Write(rec); err != nil {
				_ = f.Close()
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	})
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func toParquet(r *record.Row) parquetTrip {
	var p parquetTrip
	p.RideID = strPtr(r.V[schema.ColRideID])
	p.RideableType = strPtr(r.V[schema.ColRideableType])
	p.StartedAt = timePtr(r.V[schema.ColStartedAt])
	p.EndedAt = timePtr(r.V[schema.ColEndedAt])
	p.StartStationID = strPtr(r.V[schema.ColStartStationID])
	p.StartStationName = strPtr(r.V[schema.ColStartStationName])
	p.EndStationID = strPtr(r.V[schema.ColEndStationID])
	p.EndStationName = strPtr(r.V[schema.ColEndStationName])
	p.StartLat = floatPtr(r.V[schema.ColStartLat])
	p.StartLng = floatPtr(r.V[schema.ColStartLng])
	p.EndLat = floatPtr(r.V[schema.ColEndLat])
	p.EndLng = floatPtr(r.V[schema.ColEndLng])
	p.MemberCasual = strPtr(r.V[schema.ColMemberCasual])
	p.DurationSec = intPtr(r.V[schema.ColDurationSec])
	return p
}

func fromParquet(p *parquetTrip) *record.Row {
	r := &record.Row{V: make([]any, schema.NumCols)}
	setStr(r, schema.ColRideID, p.RideID)
	setStr(r, schema.ColRideableType, p.RideableType)
	setTime(r, schema.ColStartedAt, p.StartedAt)
	setTime(r, schema.ColEndedAt, p.EndedAt)
	setStr(r, schema.ColStartStationID, p.StartStationID)
	setStr(r, schema.ColStartStationName, p.StartStationName)
	setStr(r, schema.ColEndStationID, p.EndStationID)
	setStr(r, schema.ColEndStationName, p.EndStationName)
	setFloat(r, schema.ColStartLat, p.StartLat)
	setFloat(r, schema.ColStartLng, p.StartLng)
	setFloat(r, schema.ColEndLat, p.EndLat)
	setFloat(r, schema.ColEndLng, p.EndLng)
	setStr(r, schema.ColMemberCasual, p.MemberCasual)
	setInt(r, schema.ColDurationSec, p.DurationSec)
	return r
}

func strPtr(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func floatPtr(v any) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}

func intPtr(v any) *int64 {
	if n, ok := v.(int64); ok {
		return &n
	}
	return nil
}

func timePtr(v any) *int64 {
	if t, ok := v.(time.Time); ok {
		ms := t.UnixMilli()
		return &ms
	}
	return nil
}

func setStr(r *record.Row, col int, p *string) {
	if p != nil {
		r.V[col] = *p
	}
}

func setFloat(r *record.Row, col int, p *float64) {
	if p != nil {
		r.V[col] = *p
	}
}

func setInt(r *record.Row, col int, p *int64) {
	if p != nil {
		r.V[col] = *p
	}
}

func setTime(r *record.Row, col int, p *int64) {
	if p != nil {
		r.V[col] = time.UnixMilli(*p).UTC()
	}
}
