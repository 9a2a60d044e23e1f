package smartlog

import (
	"io"
	"slices"
	"strconv"
	"strings"
)

// EncodeATA writes records in the attribute-table format smartd uses,
// attributes ordered by ID. DecodeATA reads the output back unchanged.
func EncodeATA(w io.Writer, records []ATARecord) error {
	var sb strings.Builder
	for _, rec := range records {
		sb.Reset()
		sb.WriteString(rec.Time.Format(TimeLayout))
		sb.WriteByte(';')

		ids := make([]int, 0, len(rec.Attributes))
		for id := range rec.Attributes {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			a := rec.Attributes[id]
			sb.WriteByte('\t')
			sb.WriteString(strconv.Itoa(a.ID))
			sb.WriteByte(';')
			sb.WriteString(strconv.Itoa(a.Normalized))
			sb.WriteByte(';')
			sb.WriteString(strconv.FormatInt(a.Raw, 10))
			sb.WriteByte(';')
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// EncodeNVMe writes records in the key-value format, fields ordered by name.
func EncodeNVMe(w io.Writer, records []NVMeRecord) error {
	var sb strings.Builder
	for _, rec := range records {
		sb.Reset()
		sb.WriteString(rec.Time.Format(TimeLayout))
		sb.WriteByte(';')

		names := make([]string, 0, len(rec.Fields))
		for name := range rec.Fields {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			sb.WriteByte('\t')
			sb.WriteString(name)
			sb.WriteByte(';')
			sb.WriteString(rec.Fields[name].String())
			sb.WriteByte(';')
		}
		sb.WriteByte('\n')
		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}
