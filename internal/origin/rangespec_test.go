package origin

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		size    int64
		want    byteRange
		wantErr error
	}{
		{"closed", "bytes=100-199", 1000, byteRange{100, 199}, nil},
		{"open_end", "bytes=900-", 1000, byteRange{900, 999}, nil},
		{"open_start_means_zero", "bytes=-199", 1000, byteRange{0, 199}, nil},
		{"end_clamped", "bytes=900-5000", 1000, byteRange{900, 999}, nil},
		{"whole", "bytes=0-", 1000, byteRange{0, 999}, nil},
		{"single_byte", "bytes=999-999", 1000, byteRange{999, 999}, nil},
		{"start_past_end", "bytes=1000-", 1000, byteRange{}, errRangeUnsatisfiable},
		{"inverted", "bytes=5-3", 1000, byteRange{}, errRangeUnsatisfiable},
		{"empty_file", "bytes=0-", 0, byteRange{}, errRangeUnsatisfiable},
		{"other_unit", "items=1-2", 1000, byteRange{}, errRangeIgnored},
		{"multiple_ranges", "bytes=1-2,4-5", 1000, byteRange{}, errRangeIgnored},
		{"garbage", "bytes=abc-", 1000, byteRange{}, errRangeIgnored},
		{"no_dash", "bytes=12", 1000, byteRange{}, errRangeIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRange(tt.header, tt.size)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("range = %+v, want %+v", got, tt.want)
			}
		})
	}
}
