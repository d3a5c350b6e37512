package urlparser

import (
	"reflect"
	"testing"
)

func argvStrings(argv [][]byte) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = string(a)
	}
	return out
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantArgv []string
		wantExt  string
	}{
		{"simple get with ext", "/GET/foo.json", []string{"GET", "foo"}, "json"},
		{"no extension", "/PING", []string{"PING"}, ""},
		{"multi-arg", "/SET/x/hello world", []string{"SET", "x", "hello world"}, ""},
		{"percent-decoded arg", "/SET/x/hello%20world", []string{"SET", "x", "hello world"}, ""},
		{"ext on last segment only", "/HSET/h.bucket/field.json", []string{"HSET", "h.bucket", "field"}, "json"},
		{"lenient malformed percent", "/GET/100%", []string{"GET", "100%"}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePath(tc.path)
			if err != nil {
				t.Fatalf("ParsePath(%q) error: %v", tc.path, err)
			}
			if gotArgv := argvStrings(got.Argv); !reflect.DeepEqual(gotArgv, tc.wantArgv) {
				t.Errorf("argv = %v, want %v", gotArgv, tc.wantArgv)
			}
			if got.Ext != tc.wantExt {
				t.Errorf("ext = %q, want %q", got.Ext, tc.wantExt)
			}
		})
	}
}

func TestParsePathQuery(t *testing.T) {
	got, err := ParsePath("/GET/foo?type=image/png&jsonp=cb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Query.Get("type") != "image/png" {
		t.Errorf("type = %q, want image/png", got.Query.Get("type"))
	}
	if got.Query.Get("jsonp") != "cb" {
		t.Errorf("jsonp = %q, want cb", got.Query.Get("jsonp"))
	}
}

func TestParsePathEmpty(t *testing.T) {
	if _, err := ParsePath("/"); err != ErrEmptyArgv {
		t.Errorf("ParsePath(\"/\") error = %v, want ErrEmptyArgv", err)
	}
	if _, err := ParsePath(""); err != ErrEmptyArgv {
		t.Errorf("ParsePath(\"\") error = %v, want ErrEmptyArgv", err)
	}
}

func TestParsePut(t *testing.T) {
	got, err := ParsePut("/SET/x", []byte("raw\x00body"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"SET", "x", "raw\x00body"}
	if gotArgv := argvStrings(got.Argv); !reflect.DeepEqual(gotArgv, want) {
		t.Errorf("argv = %v, want %v", gotArgv, want)
	}
}

func TestParseBodySameGrammarAsPath(t *testing.T) {
	got, err := ParseBody([]byte("SET/x/hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"SET", "x", "hello"}
	if gotArgv := argvStrings(got.Argv); !reflect.DeepEqual(gotArgv, want) {
		t.Errorf("argv = %v, want %v", gotArgv, want)
	}
}

func TestVerbPreservesCaseButUppercasesForClassification(t *testing.T) {
	got, err := ParsePath("/get/foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got.Argv[0]) != "get" {
		t.Errorf("argv[0] = %q, want byte-preserved %q", got.Argv[0], "get")
	}
	if got.Verb() != "GET" {
		t.Errorf("Verb() = %q, want GET", got.Verb())
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	argv := [][]byte{[]byte("SET"), []byte("x"), []byte("hello")}
	serialized := Serialize(argv)
	got, err := ParsePath(serialized)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotArgv := argvStrings(got.Argv); !reflect.DeepEqual(gotArgv, argvStrings(argv)) {
		t.Errorf("round trip argv = %v, want %v", gotArgv, argvStrings(argv))
	}
}
