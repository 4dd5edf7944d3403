package vos

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertTo(t *testing.T) {
	tests := []struct {
		name    string
		in      Value
		to      ValueType
		want    Value
		wantErr bool
	}{
		{
			name: "float to uint",
			in:   FloatValue(42),
			to:   ValueTypeUint64,
			want: Uint64Value(42),
		},
		{
			name:    "float with fraction to uint",
			in:      FloatValue(42.5),
			to:      ValueTypeUint64,
			wantErr: true,
		},
		{
			name:    "negative float to uint",
			in:      FloatValue(-1),
			to:      ValueTypeUint64,
			wantErr: true,
		},
		{
			name: "uint to float",
			in:   Uint64Value(7),
			to:   ValueTypeFloat,
			want: FloatValue(7),
		},
		{
			name: "numeric string to float",
			in:   StrValue(" 3.25 "),
			to:   ValueTypeFloat,
			want: FloatValue(3.25),
		},
		{
			name:    "garbage string to float",
			in:      StrValue("abc"),
			to:      ValueTypeFloat,
			wantErr: true,
		},
		{
			name: "numeric string to uint",
			in:   StrValue("18446744073709551615"),
			to:   ValueTypeUint64,
			want: Uint64Value(18446744073709551615),
		},
		{
			name: "float to str",
			in:   FloatValue(0.5),
			to:   ValueTypeStr,
			want: StrValue("0.5"),
		},
		{
			name: "log to text",
			in:   LogValue(&LogRecord{Value: "boom"}),
			to:   ValueTypeText,
			want: TextValue("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.ConvertTo(tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertToTruncates(t *testing.T) {
	long := strings.Repeat("x", StrLenMax+100)

	got, err := StrValue(long).ConvertTo(ValueTypeStr)
	assert.NoError(t, err)
	assert.Len(t, got.S, StrLenMax)
}

func TestTruncateRuneBoundary(t *testing.T) {
	// "日" is three bytes, a cut inside it must back off to the rune start
	s := strings.Repeat("日", 100)
	got := truncate(s, 8)
	assert.Equal(t, 6, len(got))
	assert.Equal(t, "日日", got)
}

func TestFormatFloatNoExponent(t *testing.T) {
	assert.Equal(t, "1000000000000", FormatFloat(1e12))
	assert.Equal(t, "0.1", FormatFloat(0.1))
}

func TestStorable(t *testing.T) {
	s := &Sample{}
	assert.True(t, s.Storable(FlagNoHistory))

	s.Set(FlagNoTrends)
	assert.True(t, s.Storable(FlagNoHistory))
	assert.False(t, s.Storable(FlagNoTrends))

	s = &Sample{}
	s.Set(FlagUndef)
	assert.False(t, s.Storable(FlagNoHistory))
	assert.False(t, s.Storable(FlagNoTrends))
}
