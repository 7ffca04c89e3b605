package query

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/cts/params"
)

func TestParseLevels(t *testing.T) {
	tests := []struct {
		in    string
		level Level
		canon string
	}{
		{"s", LevelMultiFile, "s:"},
		{"s:", LevelMultiFile, "s:"},
		{"s:a", LevelMultiTest, "s:a:"},
		{"s:a,b:", LevelMultiTest, "s:a,b:"},
		{"s:a,b:t", LevelMultiCase, "s:a,b:t"},
		{"s:a,b:t,u", LevelMultiCase, "s:a,b:t,u"},
		{"s:a,b:t:", LevelSingleCase, "s:a,b:t:"},
		{"s:a,b:t:x=1", LevelSingleCase, "s:a,b:t:x=1"},
		{`s:a:t:x=1,y="p:q,r",z=[1,{k:2}]`, LevelSingleCase, `s:a:t:x=1,y="p:q,r",z=[1,{k:2}]`},
		{"webgpu:api,operation:copy-buffer.v2:", LevelSingleCase, "webgpu:api,operation:copy-buffer.v2:"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			q, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.in, err)
			}
			if q.Level() != tt.level {
				t.Errorf("Level() = %v, want %v", q.Level(), tt.level)
			}
			if got := q.String(); got != tt.canon {
				t.Errorf("String() = %q, want %q", got, tt.canon)
			}
		})
	}
}

func TestParseFields(t *testing.T) {
	q := MustParse("s:a,b:t,u:x=true")
	if q.Suite() != "s" {
		t.Errorf("Suite() = %q, want s", q.Suite())
	}
	if diff := cmp.Diff([]string{"a", "b"}, q.File()); diff != "" {
		t.Errorf("File() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"t", "u"}, q.Test()); diff != "" {
		t.Errorf("Test() mismatch (-want +got):\n%s", diff)
	}
	if v, ok := q.Params().Get("x"); !ok || v != params.Bool(true) {
		t.Errorf("Params().Get(x) = %v, %v; want true", v, ok)
	}

	f := q.File()
	f[0] = "changed"
	if q.File()[0] != "a" {
		t.Error("File() exposes internal storage")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		":a",
		"s::",
		"s::t",
		"s:a::",
		"s:a,:",
		"s:,a:",
		"s:a:t:x",
		"s:a:t:x=",
		"s:a:t:x=1,x=2",
		"s:a:t:_seed=1",
		"s:a:t:x=[1",
		"s a:",
		"s:a/b:",
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("Parse(%q) error = %v, want *SyntaxError", in, err)
			}
			if se.Input != in {
				t.Errorf("SyntaxError.Input = %q, want %q", se.Input, in)
			}
		})
	}
}

func TestParseErrorNamesSegment(t *testing.T) {
	_, err := Parse("s:a,b c:t")
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SyntaxError", err)
	}
	if se.Segment != "a,b c" {
		t.Errorf("Segment = %q, want %q", se.Segment, "a,b c")
	}
	if !errors.Is(err, ErrInvalidSegment) {
		t.Errorf("error %v does not wrap ErrInvalidSegment", err)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, in := range []string{
		"s:",
		"s:a:",
		"s:a,b,c:t",
		"s:a:t:",
		"s:a:t:x=1.5,y=NaN,z=-Infinity",
		`s:a:t:r={a:[true,false],b:null},s="\t"`,
	} {
		q := MustParse(in)
		back, err := Parse(q.String())
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", q.String(), err)
		}
		if !Identical(q, back) {
			t.Errorf("Parse(String()) of %q = %q, not identical", in, back)
		}
	}
}

func TestConstructors(t *testing.T) {
	if _, err := MultiFile(""); !errors.Is(err, ErrInvalidSegment) {
		t.Errorf("MultiFile(\"\") error = %v", err)
	}
	if _, err := MultiTest("s", nil); !errors.Is(err, ErrInvalidSegment) {
		t.Errorf("MultiTest with empty file error = %v", err)
	}
	if _, err := MultiCase("s", []string{"a"}, []string{}); !errors.Is(err, ErrInvalidSegment) {
		t.Errorf("MultiCase with empty test error = %v", err)
	}
	p := params.MustSpec(params.KV("_private", params.Int(1)))
	if _, err := SingleCase("s", []string{"a"}, []string{"t"}, p); err == nil {
		t.Error("SingleCase accepted a private parameter")
	}

	q, err := SingleCase("s", []string{"a", "b"}, []string{"t"}, params.MustSpec(params.KV("x", params.Int(1))))
	if err != nil {
		t.Fatalf("SingleCase() error = %v", err)
	}
	if got, want := q.String(), "s:a,b:t:x=1"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if !Identical(q, MustParse("s:a,b:t:x=1")) {
		t.Error("constructed and parsed queries differ")
	}
}

func TestZeroQuery(t *testing.T) {
	var q Query
	if !q.IsZero() {
		t.Error("zero Query is not IsZero")
	}
	if MustParse("s:").IsZero() {
		t.Error("parsed query reports IsZero")
	}
}
