package host

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/tomyedwab/ocidb/oci"
)

type resultColumn struct {
	name    string
	typ     oci.ColumnType
	subtype int
	scale   int
}

// resultset holds the fully materialized rows of one execution.
type resultset struct {
	id      string
	stmt    *statement
	columns []resultColumn
	rows    [][]any
	pos     int // 1-based index of the current row, 0 before the first fetch
	owned   []string
}

var numericScale = regexp.MustCompile(`^\s*\(\s*\d+\s*(?:,\s*(-?\d+)\s*)?\)`)

// declaredType maps a declared column type onto a native type code.
func declaredType(decl string) (oci.ColumnType, int, int, bool) {
	decl = strings.ToUpper(strings.TrimSpace(decl))
	switch {
	case decl == "":
		return oci.CDTUnknown, 0, 0, false
	case strings.Contains(decl, "BOOL"):
		return oci.CDTBoolean, 0, 0, true
	case strings.HasPrefix(decl, "TIMESTAMP"):
		return oci.CDTTimestamp, 0, 0, true
	case decl == "DATE" || decl == "DATETIME":
		return oci.CDTDatetime, 0, 0, true
	case strings.HasPrefix(decl, "INTERVAL"):
		return oci.CDTInterval, 0, 0, true
	case decl == "LONG RAW":
		return oci.CDTLong, oci.LongBinary, 0, true
	case decl == "LONG":
		return oci.CDTLong, oci.LongChar, 0, true
	case decl == "CLOB" || decl == "NCLOB" || decl == "BLOB":
		return oci.CDTLob, 0, 0, true
	case decl == "BFILE":
		return oci.CDTFile, 0, 0, true
	case strings.HasPrefix(decl, "RAW"):
		return oci.CDTRaw, 0, 0, true
	case strings.HasPrefix(decl, "REF"):
		return oci.CDTRef, 0, 0, true
	case decl == "CURSOR" || decl == "SYS_REFCURSOR":
		return oci.CDTCursor, 0, 0, true
	case strings.HasPrefix(decl, "BINARY_FLOAT") || strings.HasPrefix(decl, "FLOAT"):
		return oci.CDTNumeric, oci.NumFloat, oci.ScaleUndefined, true
	case strings.HasPrefix(decl, "BINARY_DOUBLE") || strings.HasPrefix(decl, "DOUBLE") || decl == "REAL":
		return oci.CDTNumeric, oci.NumDouble, oci.ScaleUndefined, true
	case strings.Contains(decl, "INT"):
		return oci.CDTNumeric, oci.NumNumber, 0, true
	case strings.HasPrefix(decl, "NUMBER") || strings.HasPrefix(decl, "NUMERIC") || strings.HasPrefix(decl, "DECIMAL"):
		i := strings.IndexByte(decl, '(')
		if i < 0 {
			return oci.CDTNumeric, oci.NumNumber, oci.ScaleUndefined, true
		}
		m := numericScale.FindStringSubmatch(decl[i:])
		if m == nil || m[1] == "" {
			return oci.CDTNumeric, oci.NumNumber, 0, true
		}
		scale, _ := strconv.Atoi(m[1])
		return oci.CDTNumeric, oci.NumNumber, scale, true
	case strings.Contains(decl, "CHAR") || strings.Contains(decl, "TEXT") ||
		strings.Contains(decl, "STRING") || decl == "JSON":
		return oci.CDTText, 0, 0, true
	}
	return oci.CDTUnknown, 0, 0, true
}

// inferType derives a type code for an undeclared (expression) column from
// the values it holds.
func inferType(rows [][]any, col int) (oci.ColumnType, int, int) {
	typ, subtype, scale := oci.CDTText, 0, 0
	seen := false
	for _, row := range rows {
		switch v := row[col].(type) {
		case nil:
			continue
		case int64:
			if !seen {
				typ, subtype, scale = oci.CDTNumeric, oci.NumNumber, 0
			}
		case float64:
			if !seen || typ == oci.CDTNumeric {
				typ, subtype, scale = oci.CDTNumeric, oci.NumDouble, oci.ScaleUndefined
			}
		case bool:
			typ = oci.CDTBoolean
		case time.Time:
			typ = oci.CDTTimestamp
		case []byte:
			typ = oci.CDTRaw
		case string:
			if strings.HasPrefix(v, cursorMarker) {
				typ = oci.CDTCursor
			} else {
				typ = oci.CDTText
			}
		}
		seen = true
	}
	return typ, subtype, scale
}

func materialize(ctx context.Context, rows *sqlx.Rows, into []string) (*resultset, error) {
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	rs := &resultset{columns: make([]resultColumn, len(types))}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		rs.rows = append(rs.rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, ct := range types {
		col := resultColumn{name: strings.ToUpper(ct.Name())}
		var declared bool
		col.typ, col.subtype, col.scale, declared = declaredType(ct.DatabaseTypeName())
		if !declared {
			col.typ, col.subtype, col.scale = inferType(rs.rows, i)
		}
		if i < len(into) {
			col.name = into[i]
			if col.typ != oci.CDTNumeric {
				col.typ, col.subtype, col.scale = oci.CDTNumeric, oci.NumNumber, 0
			}
		}
		rs.columns[i] = col

		if col.typ == oci.CDTDatetime || col.typ == oci.CDTTimestamp {
			for _, row := range rs.rows {
				if s, ok := row[i].(string); ok {
					if t, ok := parseTime(s); ok {
						row[i] = t
					}
				}
			}
		}
	}
	return rs, nil
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (rs *resultset) host() *Host {
	return rs.stmt.sess.host
}

func (rs *resultset) fetched() int {
	return min(rs.pos, len(rs.rows))
}

func (rs *resultset) releaseOwned() {
	for _, id := range rs.owned {
		rs.host().unregister(id)
	}
	rs.owned = rs.owned[:0]
}

func (rs *resultset) free() {
	rs.releaseOwned()
	rs.host().unregister(rs.id)
}

// own registers obj as a handle freed when the cursor moves.
func (rs *resultset) own(obj any) string {
	id := rs.host().register(obj)
	rs.owned = append(rs.owned, id)
	return id
}

func (rs *resultset) field(index uint32) (any, *resultColumn, error) {
	if rs.pos == 0 || rs.pos > len(rs.rows) {
		return nil, nil, driverError(drvNoCurrentRow, "no current row")
	}
	if index == 0 || int(index) > len(rs.columns) {
		return nil, nil, driverError(drvColumnIndex, "column index %d out of range", index)
	}
	return rs.rows[rs.pos-1][index-1], &rs.columns[index-1], nil
}

func (h *Host) Resultset(sh oci.Stmt) (oci.Resultset, bool) {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil || st.rs == nil {
		return "", false
	}
	return oci.Resultset(st.rs.id), true
}

func (h *Host) ReleaseResultsets(sh oci.Stmt) error {
	st, err := lookup[*statement](h, string(sh), "statement")
	if err != nil {
		return err
	}
	st.releaseResults()
	return nil
}

func (h *Host) FetchNext(rh oci.Resultset) (bool, error) {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return false, err
	}
	rs.releaseOwned()
	if rs.pos > len(rs.rows) {
		return false, nil
	}
	rs.pos++
	return rs.pos <= len(rs.rows), nil
}

func (h *Host) RowCount(rh oci.Resultset) uint32 {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return 0
	}
	return uint32(rs.fetched())
}

func (h *Host) ColumnCount(rh oci.Resultset) uint32 {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return 0
	}
	return uint32(len(rs.columns))
}

func (h *Host) column(col oci.Column) *resultColumn {
	rs, err := lookup[*resultset](h, string(col.Resultset), "resultset")
	if err != nil || col.Index == 0 || int(col.Index) > len(rs.columns) {
		return nil
	}
	return &rs.columns[col.Index-1]
}

func (h *Host) ColumnName(col oci.Column) string {
	if c := h.column(col); c != nil {
		return c.name
	}
	return ""
}

func (h *Host) ColumnType(col oci.Column) oci.ColumnType {
	if c := h.column(col); c != nil {
		return c.typ
	}
	return oci.CDTUnknown
}

func (h *Host) ColumnSubtype(col oci.Column) int {
	if c := h.column(col); c != nil {
		return c.subtype
	}
	return 0
}

func (h *Host) ColumnScale(col oci.Column) int {
	if c := h.column(col); c != nil {
		return c.scale
	}
	return 0
}

func (h *Host) IsNull(rh oci.Resultset, index uint32) bool {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return true
	}
	v, _, err := rs.field(index)
	return err != nil || v == nil
}

func (h *Host) GetString(rh oci.Resultset, index uint32) (string, error) {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return "", err
	}
	v, col, err := rs.field(index)
	if err != nil {
		return "", err
	}
	formats := rs.stmt.sess.formats
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimPrefix(t, cursorMarker), nil
	case []byte:
		if col.typ == oci.CDTRaw || col.subtype == oci.LongBinary {
			return strings.ToUpper(hex.EncodeToString(t)), nil
		}
		return string(t), nil
	case int64:
		return fmt.Sprintf(formats[oci.FormatNumeric], t), nil
	case float64:
		if formats[oci.FormatNumeric] == defaultNumericFormat {
			return strconv.FormatFloat(t, 'f', -1, 64), nil
		}
		return fmt.Sprintf(formats[oci.FormatNumeric], t), nil
	case bool:
		if t {
			return "TRUE", nil
		}
		return "FALSE", nil
	case time.Time:
		if col.typ == oci.CDTDatetime {
			return formatTime(t, formats[oci.FormatDate]), nil
		}
		return formatTime(t, formats[oci.FormatTimestamp]), nil
	}
	return fmt.Sprint(v), nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, serverError(oraInvalidNumber, "invalid number")
		}
		return f, nil
	case []byte:
		return toFloat(string(t))
	}
	return 0, serverError(oraInvalidNumber, "invalid number")
}

func (h *Host) GetInt(rh oci.Resultset, index uint32) (int64, error) {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return 0, err
	}
	v, _, err := rs.field(index)
	if err != nil {
		return 0, err
	}
	if i, ok := v.(int64); ok {
		return i, nil
	}
	if s, ok := v.(string); ok {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	return int64(math.Trunc(f)), nil
}

func (h *Host) GetDouble(rh oci.Resultset, index uint32) (float64, error) {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return 0, err
	}
	v, _, err := rs.field(index)
	if err != nil {
		return 0, err
	}
	return toFloat(v)
}

func (h *Host) GetRaw(rh oci.Resultset, index uint32) ([]byte, error) {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return nil, err
	}
	v, _, err := rs.field(index)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return append([]byte(nil), t...), nil
	case string:
		return []byte(t), nil
	}
	return nil, driverError(drvTypeMismatch, "column %d is not binary", index)
}

// timeField reads the current value of a date or timestamp column.
func (rs *resultset) timeField(index uint32) (time.Time, error) {
	v, _, err := rs.field(index)
	if err != nil {
		return time.Time{}, err
	}
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		if parsed, ok := parseTime(t); ok {
			return parsed, nil
		}
	case int64:
		return time.Unix(t, 0).UTC(), nil
	}
	return time.Time{}, serverError(oci.CodeInvalidDate, "a non-numeric character was found where a numeric was expected")
}

func (h *Host) GetDate(rh oci.Resultset, index uint32) (oci.Date, error) {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return "", err
	}
	t, err := rs.timeField(index)
	if err != nil {
		return "", err
	}
	return oci.Date(rs.own(&dateValue{t: t})), nil
}

func (h *Host) GetTimestamp(rh oci.Resultset, index uint32) (oci.Timestamp, error) {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return "", err
	}
	t, err := rs.timeField(index)
	if err != nil {
		return "", err
	}
	return oci.Timestamp(rs.own(&timestampValue{t: t})), nil
}

func (h *Host) GetLong(rh oci.Resultset, index uint32) (oci.Long, error) {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return "", err
	}
	v, col, err := rs.field(index)
	if err != nil {
		return "", err
	}
	lv := &longValue{typ: oci.LongChar}
	if col.typ == oci.CDTLong && col.subtype == oci.LongBinary {
		lv.typ = oci.LongBinary
	}
	switch t := v.(type) {
	case string:
		lv.data = []byte(t)
	case []byte:
		lv.data = append([]byte(nil), t...)
	}
	return oci.Long(rs.own(lv)), nil
}

func (h *Host) GetStatement(rh oci.Resultset, index uint32) (oci.Stmt, error) {
	rs, err := lookup[*resultset](h, string(rh), "resultset")
	if err != nil {
		return "", err
	}
	v, _, err := rs.field(index)
	if err != nil {
		return "", err
	}
	text, ok := v.(string)
	if !ok || !strings.HasPrefix(text, cursorMarker) {
		return "", driverError(drvTypeMismatch, "column %d is not a cursor", index)
	}

	parent := rs.stmt
	nested := h.newStatement(parent.sess, parent)
	parent.nested = append(parent.nested, nested)

	ctx, done := parent.sess.call()
	err = nested.prepare(ctx, strings.TrimPrefix(text, cursorMarker))
	done()
	if err != nil {
		return "", err
	}
	if err := nested.execute(); err != nil {
		return "", err
	}
	return oci.Stmt(nested.id), nil
}
