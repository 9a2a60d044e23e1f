package smartlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp format at the start of every log line.
const TimeLayout = "2006-01-02 15:04:05"

// maxLineSize bounds a single log line; smartd lines are well under 4 KiB.
// Longer lines are dropped.
const maxLineSize = 1 << 20

// Diagnostics counts what the decoder dropped. Malformed input is never an
// error; callers log these counts instead.
type Diagnostics struct {
	Lines         int // non-blank lines read
	Decoded       int // records emitted
	Discarded     int // lines dropped (bad timestamp or no valid fields)
	SkippedFields int // attribute groups or pairs that failed to parse
}

var nvmeIntegerFields = map[string]struct{}{
	FieldTemperature:     {},
	FieldPowerCycles:     {},
	FieldPowerOnHours:    {},
	FieldUnsafeShutdowns: {},
	FieldControllerBusy:  {},
	FieldMediaErrors:     {},
	FieldErrorLogEntries: {},
}

var nvmePercentFields = map[string]struct{}{
	FieldAvailableSpare: {},
	FieldPercentageUsed: {},
}

// Decode reads a log of the given family.
func Decode(family Family, r io.Reader) (DeviceLog, Diagnostics, error) {
	switch family {
	case FamilyATA:
		return DecodeATA(r)
	case FamilyNVMe:
		return DecodeNVMe(r)
	}
	return nil, Diagnostics{}, fmt.Errorf("decode: %w: %d", ErrUnknownFamily, uint8(family))
}

// DecodeATA reads an attribute-table log:
//
//	2025-06-12 06:43:41;	1;100;0;	5;100;0;	194;69;31;
//
// A triplet that does not parse as three integers is skipped. A line with a
// bad timestamp or without any valid triplet is dropped.
func DecodeATA(r io.Reader) (ATALog, Diagnostics, error) {
	records, diag, err := decodeLines(r, decodeATAFields)
	if err != nil {
		return ATALog{}, diag, err
	}
	return ATALog{NewSeries(records)}, diag, nil
}

// DecodeNVMe reads a key-value log:
//
//	2025-06-12 06:43:41;	temperature;57;	available_spare;100%;
//
// Known counters become integers. available_spare and percentage_used become
// percentages when they carry a trailing % and are finite; everything else
// keeps its text.
func DecodeNVMe(r io.Reader) (NVMeLog, Diagnostics, error) {
	records, diag, err := decodeLines(r, decodeNVMeFields)
	if err != nil {
		return NVMeLog{}, diag, err
	}
	return NVMeLog{NewSeries(records)}, diag, nil
}

type fieldDecoder[R Record] func(t time.Time, fields []string) (rec R, skipped int, ok bool)

func decodeLines[R Record](r io.Reader, decode fieldDecoder[R]) ([]R, Diagnostics, error) {
	var (
		out  []R
		diag Diagnostics
		buf  []byte
		long bool
	)

	br := bufio.NewReaderSize(r, 64*1024)
	for {
		chunk, err := br.ReadSlice('\n')
		if !long && len(buf)+len(chunk) <= maxLineSize {
			buf = append(buf, chunk...)
		} else {
			// drain the rest of an oversized line and drop it
			long, buf = true, buf[:0]
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, diag, fmt.Errorf("read attribute log: %w", err)
		}

		if long {
			diag.Lines++
			diag.Discarded++
		} else if rec, ok := decodeLine(string(buf), decode, &diag); ok {
			out = append(out, rec)
		}
		buf, long = buf[:0], false

		if err != nil {
			break
		}
	}

	diag.Decoded = len(out)
	return out, diag, nil
}

func decodeLine[R Record](text string, decode fieldDecoder[R], diag *Diagnostics) (R, bool) {
	var zero R
	line := strings.TrimSpace(text)
	if line == "" {
		return zero, false
	}
	diag.Lines++

	fields := strings.Split(line, ";")
	if len(fields) < 2 {
		diag.Discarded++
		return zero, false
	}
	ts, err := time.Parse(TimeLayout, strings.TrimSpace(fields[0]))
	if err != nil {
		diag.Discarded++
		return zero, false
	}

	rec, skipped, ok := decode(ts, fields[1:])
	diag.SkippedFields += skipped
	if !ok {
		diag.Discarded++
		return zero, false
	}
	return rec, true
}

func decodeATAFields(t time.Time, fields []string) (ATARecord, int, bool) {
	attrs := make(map[int]ATAAttribute)
	skipped := 0
	for i := 0; i+2 < len(fields); i += 3 {
		id, errID := strconv.Atoi(strings.TrimSpace(fields[i]))
		norm, errNorm := strconv.Atoi(strings.TrimSpace(fields[i+1]))
		raw, errRaw := strconv.ParseInt(strings.TrimSpace(fields[i+2]), 10, 64)
		if errID != nil || errNorm != nil || errRaw != nil {
			skipped++
			continue
		}
		attrs[id] = ATAAttribute{ID: id, Normalized: norm, Raw: raw}
	}
	if len(attrs) == 0 {
		return ATARecord{}, skipped, false
	}
	return ATARecord{Time: t, Attributes: attrs}, skipped, true
}

func decodeNVMeFields(t time.Time, fields []string) (NVMeRecord, int, bool) {
	values := make(map[string]NVMeValue)
	skipped := 0
	for i := 0; i+1 < len(fields); i += 2 {
		name := strings.TrimSpace(fields[i])
		if name == "" {
			skipped++
			continue
		}
		values[name] = coerceNVMe(name, strings.TrimSpace(fields[i+1]))
	}
	if len(values) == 0 {
		return NVMeRecord{}, skipped, false
	}
	return NVMeRecord{Time: t, Fields: values}, skipped, true
}

func coerceNVMe(name, text string) NVMeValue {
	v := NVMeValue{Kind: KindText, Text: text}
	if _, ok := nvmeIntegerFields[name]; ok {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			v.Kind, v.Int = KindInt, n
		}
		return v
	}
	if _, ok := nvmePercentFields[name]; ok {
		pct, ok := strings.CutSuffix(text, "%")
		if !ok {
			return v
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			v.Kind, v.Float = KindPercent, f
		}
	}
	return v
}
