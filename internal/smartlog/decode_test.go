package smartlog

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(TimeLayout, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func TestDecodeATA(t *testing.T) {
	input := strings.Join([]string{
		"2025-06-12 06:43:41;\t1;100;0;\t5;100;0;\t194;69;543;",
		"2025-06-12 07:13:41;\t1;100;0;\t5;100;2;\t194;68;32;",
	}, "\n")

	log, diag, err := DecodeATA(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeATA() error = %v", err)
	}
	if log.Len() != 2 {
		t.Fatalf("DecodeATA() records = %d, want 2", log.Len())
	}
	if diag.Decoded != 2 || diag.Discarded != 0 {
		t.Errorf("diagnostics = %+v, want 2 decoded, 0 discarded", diag)
	}

	first, _ := log.First()
	if got := first.Attributes[AttrTemperatureCelsius]; got != (ATAAttribute{ID: 194, Normalized: 69, Raw: 543}) {
		t.Errorf("attribute 194 = %+v", got)
	}
	last, _ := log.Last()
	if raw, ok := last.Raw(AttrReallocatedSectorCt); !ok || raw != 2 {
		t.Errorf("last Raw(5) = %d, %v, want 2, true", raw, ok)
	}
	if !last.Time.Equal(mustTime(t, "2025-06-12 07:13:41")) {
		t.Errorf("last timestamp = %v", last.Time)
	}
}

func TestDecodeATADropsMalformed(t *testing.T) {
	input := strings.Join([]string{
		"not-a-date;\t1;100;0;",
		"",
		"2025-06-12 06:43:41",
		"2025-06-12 06:43:41;\tx;y;z;",
		"2025-06-12 06:43:41;\t5;100;0;\tbad;1;2;\t9;99;1200;",
		"   ",
	}, "\n")

	log, diag, err := DecodeATA(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeATA() error = %v", err)
	}
	if log.Len() != 1 {
		t.Fatalf("records = %d, want 1", log.Len())
	}
	want := Diagnostics{Lines: 4, Decoded: 1, Discarded: 3, SkippedFields: 2}
	if diag != want {
		t.Errorf("diagnostics = %+v, want %+v", diag, want)
	}
	rec, _ := log.First()
	if len(rec.Attributes) != 2 {
		t.Errorf("attributes = %d, want 2", len(rec.Attributes))
	}
}

func TestDecodeATAIgnoresTrailingPartialGroup(t *testing.T) {
	log, diag, err := DecodeATA(strings.NewReader("2025-06-12 06:43:41;\t5;100;7;\t9;99"))
	if err != nil {
		t.Fatalf("DecodeATA() error = %v", err)
	}
	rec, ok := log.First()
	if !ok {
		t.Fatal("expected one record")
	}
	if len(rec.Attributes) != 1 || rec.Attributes[5].Raw != 7 {
		t.Errorf("attributes = %+v", rec.Attributes)
	}
	if diag.SkippedFields != 0 {
		t.Errorf("SkippedFields = %d, want 0", diag.SkippedFields)
	}
}

func TestDecodeNVMe(t *testing.T) {
	input := "2025-06-12 06:43:41;\ttemperature;57;\tavailable_spare;100%;\tpercentage_used;3%;" +
		"\tmedia_and_data_integrity_errors;0;\tcritical_warning;0x00;\tpower_on_hours;n/a;\n"

	log, _, err := DecodeNVMe(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeNVMe() error = %v", err)
	}
	rec, ok := log.First()
	if !ok {
		t.Fatal("expected one record")
	}

	tests := []struct {
		name string
		want NVMeValue
	}{
		{FieldTemperature, NVMeValue{Kind: KindInt, Int: 57, Text: "57"}},
		{FieldAvailableSpare, NVMeValue{Kind: KindPercent, Float: 100, Text: "100%"}},
		{FieldPercentageUsed, NVMeValue{Kind: KindPercent, Float: 3, Text: "3%"}},
		{FieldMediaErrors, NVMeValue{Kind: KindInt, Int: 0, Text: "0"}},
		{"critical_warning", NVMeValue{Kind: KindText, Text: "0x00"}},
		{FieldPowerOnHours, NVMeValue{Kind: KindText, Text: "n/a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := rec.Fields[tt.name]
			if !ok {
				t.Fatalf("field %q missing", tt.name)
			}
			if got != tt.want {
				t.Errorf("field %q = %+v, want %+v", tt.name, got, tt.want)
			}
		})
	}

	if _, ok := rec.Integer(FieldPowerOnHours); ok {
		t.Error("Integer(power_on_hours) should fail for text value")
	}
	if v, ok := rec.Number(FieldAvailableSpare); !ok || v != 100 {
		t.Errorf("Number(available_spare) = %v, %v", v, ok)
	}
}

func TestDecodeNVMeOddTrailingName(t *testing.T) {
	log, _, err := DecodeNVMe(strings.NewReader("2025-06-12 06:43:41;\ttemperature;40;\tdangling"))
	if err != nil {
		t.Fatalf("DecodeNVMe() error = %v", err)
	}
	rec, _ := log.First()
	if len(rec.Fields) != 1 {
		t.Errorf("fields = %v, want only temperature", rec.Fields)
	}
}

func TestDecodeDropsOversizedLine(t *testing.T) {
	input := "2025-06-12 06:00:00;\t5;100;0;\n" +
		"2025-06-12 06:30:00;" + strings.Repeat("x", 2<<20) + "\n" +
		"2025-06-12 07:00:00;\t5;100;1;\n"

	log, diag, err := DecodeATA(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeATA() error = %v", err)
	}
	if log.Len() != 2 {
		t.Fatalf("records = %d, want 2", log.Len())
	}
	if last, _ := log.Last(); !last.Time.Equal(mustTime(t, "2025-06-12 07:00:00")) {
		t.Errorf("last record at %v, want the line after the oversized one", last.Time)
	}
	want := Diagnostics{Lines: 3, Decoded: 2, Discarded: 1}
	if diag != want {
		t.Errorf("diag = %+v, want %+v", diag, want)
	}
}

func TestDecodeNVMePercentNeedsFiniteValue(t *testing.T) {
	tests := []struct {
		text string
		want NVMeValue
	}{
		{"95%", NVMeValue{Kind: KindPercent, Float: 95, Text: "95%"}},
		{"100", NVMeValue{Kind: KindText, Text: "100"}},
		{"NaN%", NVMeValue{Kind: KindText, Text: "NaN%"}},
		{"Inf%", NVMeValue{Kind: KindText, Text: "Inf%"}},
		{"-infinity%", NVMeValue{Kind: KindText, Text: "-infinity%"}},
		{"n/a%", NVMeValue{Kind: KindText, Text: "n/a%"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			log, _, err := DecodeNVMe(strings.NewReader("2025-06-12 06:43:41;\tavailable_spare;" + tt.text + ";"))
			if err != nil {
				t.Fatalf("DecodeNVMe() error = %v", err)
			}
			rec, ok := log.First()
			if !ok {
				t.Fatal("expected one record")
			}
			if got := rec.Fields[FieldAvailableSpare]; got != tt.want {
				t.Errorf("available_spare = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeSortsStable(t *testing.T) {
	input := strings.Join([]string{
		"2025-06-12 08:00:00;\t5;100;3;",
		"2025-06-12 06:00:00;\t5;100;1;",
		"2025-06-12 08:00:00;\t5;100;4;",
		"2025-06-12 07:00:00;\t5;100;2;",
	}, "\n")

	log, _, err := DecodeATA(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeATA() error = %v", err)
	}
	var got []int64
	for _, rec := range log.Records() {
		got = append(got, rec.Attributes[5].Raw)
	}
	if want := []int64{1, 2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestDecodeDispatch(t *testing.T) {
	dl, _, err := Decode(FamilyNVMe, strings.NewReader("2025-06-12 06:43:41;\ttemperature;40;"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if _, ok := dl.(NVMeLog); !ok {
		t.Errorf("Decode(nvme) returned %T", dl)
	}
	if dl.Family() != FamilyNVMe {
		t.Errorf("Family() = %v", dl.Family())
	}

	if _, _, err := Decode(Family(9), strings.NewReader("")); !errors.Is(err, ErrUnknownFamily) {
		t.Errorf("Decode(unknown) error = %v, want ErrUnknownFamily", err)
	}
}

func TestEncodeATARoundTrip(t *testing.T) {
	records := []ATARecord{
		{
			Time: mustTime(t, "2025-06-12 06:43:41"),
			Attributes: map[int]ATAAttribute{
				1:   {ID: 1, Normalized: 100, Raw: 0},
				5:   {ID: 5, Normalized: 100, Raw: 12},
				9:   {ID: 9, Normalized: 91, Raw: 8123},
				194: {ID: 194, Normalized: 69, Raw: 0x021F},
			},
		},
		{
			Time: mustTime(t, "2025-06-13 06:43:41"),
			Attributes: map[int]ATAAttribute{
				5:   {ID: 5, Normalized: 99, Raw: 13},
				197: {ID: 197, Normalized: 100, Raw: 1 << 40},
			},
		},
	}

	var buf bytes.Buffer
	if err := EncodeATA(&buf, records); err != nil {
		t.Fatalf("EncodeATA() error = %v", err)
	}
	log, diag, err := DecodeATA(&buf)
	if err != nil {
		t.Fatalf("DecodeATA() error = %v", err)
	}
	if diag.Discarded != 0 || diag.SkippedFields != 0 {
		t.Errorf("diagnostics = %+v", diag)
	}
	if got := log.Records(); !reflect.DeepEqual(got, records) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, records)
	}
}

func TestEncodeNVMeRoundTrip(t *testing.T) {
	records := []NVMeRecord{{
		Time: mustTime(t, "2025-06-12 06:43:41"),
		Fields: map[string]NVMeValue{
			FieldTemperature:    {Kind: KindInt, Int: 41, Text: "41"},
			FieldAvailableSpare: {Kind: KindPercent, Float: 98, Text: "98%"},
			"critical_warning":  {Kind: KindText, Text: "0x00"},
		},
	}}

	var buf bytes.Buffer
	if err := EncodeNVMe(&buf, records); err != nil {
		t.Fatalf("EncodeNVMe() error = %v", err)
	}
	log, _, err := DecodeNVMe(&buf)
	if err != nil {
		t.Fatalf("DecodeNVMe() error = %v", err)
	}
	if got := log.Records(); !reflect.DeepEqual(got, records) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, records)
	}
}

func TestParseFamily(t *testing.T) {
	tests := []struct {
		in      string
		want    Family
		wantErr bool
	}{
		{"ata", FamilyATA, false},
		{"NVMe", FamilyNVMe, false},
		{" nvme ", FamilyNVMe, false},
		{"scsi", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFamily(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFamily(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFamily(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
