package css

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

const testSheet = `
/* header comment */
body { margin: 0; font-family: "Liberation Serif", serif; }

h1, h2 {
	text-align: center; /* inline comment */
	margin-top: 1em;
}

@import url("other.css");

@media print {
	body { margin: 2cm; }
}

.quote { content: "}"; background: url(data:image/png;base64,AAAA); }

p { text-indent: 1.5em }
`

func parseSheet(t *testing.T, text string) *Sheet {
	t.Helper()
	s := NewSheet(nil)
	if err := s.ParseStream(strings.NewReader(text)); err != nil {
		t.Fatalf("ParseStream failed: %v", err)
	}
	return s
}

func allRules(s *Sheet) []Rule {
	rules := make([]Rule, 0, s.RuleCount())
	for i := 0; i < s.RuleCount(); i++ {
		rules = append(rules, s.Rule(i))
	}
	return rules
}

func TestParseStream(t *testing.T) {
	s := parseSheet(t, testSheet)

	want := []Rule{
		{Selector: "body", Decls: []Decl{
			{Property: "margin", Value: "0"},
			{Property: "font-family", Value: `"Liberation Serif", serif`},
		}},
		{Selector: "h1", Decls: []Decl{
			{Property: "text-align", Value: "center"},
			{Property: "margin-top", Value: "1em"},
		}},
		{Selector: "h2", Decls: []Decl{
			{Property: "text-align", Value: "center"},
			{Property: "margin-top", Value: "1em"},
		}},
		{Selector: ".quote", Decls: []Decl{
			{Property: "content", Value: `"}"`},
			{Property: "background", Value: "url(data:image/png;base64,AAAA)"},
		}},
		{Selector: "p", Decls: []Decl{
			{Property: "text-indent", Value: "1.5em"},
		}},
	}
	if got := allRules(s); !reflect.DeepEqual(got, want) {
		t.Errorf("rules = %+v, want %+v", got, want)
	}
}

func TestDeclarationsFor(t *testing.T) {
	s := parseSheet(t, `p { margin: 0; } div { margin: 2em; } p { margin: 1em; color: black; }`)

	want := []Decl{
		{Property: "margin", Value: "0"},
		{Property: "margin", Value: "1em"},
		{Property: "color", Value: "black"},
	}
	if got := s.DeclarationsFor("p"); !reflect.DeepEqual(got, want) {
		t.Errorf("DeclarationsFor(p) = %+v, want %+v", got, want)
	}
	if got := s.DeclarationsFor("h1"); got != nil {
		t.Errorf("DeclarationsFor(h1) = %+v, want nil", got)
	}
}

func TestParseStreamTruncated(t *testing.T) {
	// The complete rule survives; the block cut mid-value is dropped.
	s := parseSheet(t, `p { margin: 0; } div { color: bl`)
	if s.RuleCount() != 1 {
		t.Fatalf("RuleCount = %d, want 1", s.RuleCount())
	}
	if got := s.DeclarationsFor("div"); got != nil {
		t.Errorf("DeclarationsFor(div) = %+v, want nil", got)
	}
	if got := s.DeclarationsFor("p"); len(got) != 1 {
		t.Errorf("DeclarationsFor(p) = %+v, want one declaration", got)
	}
}

func TestParseStreamAppends(t *testing.T) {
	s := parseSheet(t, `p { margin: 0; }`)
	if err := s.ParseStream(strings.NewReader(`div { color: red; }`)); err != nil {
		t.Fatalf("second ParseStream failed: %v", err)
	}
	if s.RuleCount() != 2 {
		t.Errorf("RuleCount = %d, want 2", s.RuleCount())
	}
}

func TestRuleOutOfRange(t *testing.T) {
	s := parseSheet(t, `p { margin: 0; }`)
	if got := s.Rule(5); !reflect.DeepEqual(got, Rule{}) {
		t.Errorf("Rule(5) = %+v, want zero rule", got)
	}
	if got := s.Rule(-1); !reflect.DeepEqual(got, Rule{}) {
		t.Errorf("Rule(-1) = %+v, want zero rule", got)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	src := parseSheet(t, testSheet)

	var blob bytes.Buffer
	if err := src.SaveCache(&blob); err != nil {
		t.Fatalf("SaveCache failed: %v", err)
	}

	dst := NewSheet(nil)
	if err := dst.LoadCache(&blob); err != nil {
		t.Fatalf("LoadCache failed: %v", err)
	}
	if !reflect.DeepEqual(allRules(dst), allRules(src)) {
		t.Errorf("loaded rules differ from saved rules")
	}
}

func TestLoadCacheInvalid(t *testing.T) {
	good := func() []byte {
		var blob bytes.Buffer
		if err := parseSheet(t, `p { margin: 0; }`).SaveCache(&blob); err != nil {
			t.Fatalf("SaveCache failed: %v", err)
		}
		return blob.Bytes()
	}()

	wrongVersion := append([]byte(nil), good...)
	wrongVersion[4] = 0xFF

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 'X'

	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"short header", good[:6]},
		{"bad magic", badMagic},
		{"wrong version", wrongVersion},
		{"truncated rules", good[:len(good)-3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSheet(nil)
			err := s.LoadCache(bytes.NewReader(tt.blob))
			if !errors.Is(err, ErrCacheInvalid) {
				t.Fatalf("LoadCache error = %v, want ErrCacheInvalid", err)
			}
			if s.RuleCount() != 0 {
				t.Errorf("RuleCount after failed load = %d, want 0", s.RuleCount())
			}
		})
	}
}

func TestReset(t *testing.T) {
	s := parseSheet(t, `p { margin: 0; }`)
	s.Reset()
	if s.RuleCount() != 0 {
		t.Errorf("RuleCount after Reset = %d, want 0", s.RuleCount())
	}
}
