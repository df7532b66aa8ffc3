package toc

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func collect(entries *[]Entry) Sink {
	return func(e Entry) error {
		*entries = append(*entries, e)
		return nil
	}
}

const testNCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head><meta name="dtb:uid" content="urn:uuid:1"/></head>
  <docTitle><text>The Book</text></docTitle>
  <navMap>
    <navPoint id="n1" playOrder="1">
      <navLabel><text>Chapter  One</text></navLabel>
      <content src="ch1.xhtml"/>
      <navPoint id="n2" playOrder="2">
        <navLabel><text>Section 1.1</text></navLabel>
        <content src="ch1.xhtml#s1"/>
      </navPoint>
    </navPoint>
    <navPoint id="n3" playOrder="3">
      <navLabel><text>Chapter Two</text></navLabel>
      <content src="text/ch2.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`

func TestParseNCX(t *testing.T) {
	var got []Entry
	if err := ParseNCX(strings.NewReader(testNCX), "OEBPS/toc.ncx", collect(&got), nil); err != nil {
		t.Fatalf("ParseNCX failed: %v", err)
	}
	want := []Entry{
		{Title: "Chapter One", Href: "OEBPS/ch1.xhtml", Depth: 0},
		{Title: "Section 1.1", Href: "OEBPS/ch1.xhtml#s1", Depth: 1},
		{Title: "Chapter Two", Href: "OEBPS/text/ch2.xhtml", Depth: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %+v, want %+v", got, want)
	}
}

func TestParseNCXLabelOnlyParent(t *testing.T) {
	// A navPoint without a content element still appears before its
	// children, just without a target.
	input := `<ncx><navMap>
  <navPoint><navLabel><text>Part I</text></navLabel>
    <navPoint><navLabel><text>Ch 1</text></navLabel><content src="c1.xhtml"/></navPoint>
  </navPoint>
</navMap></ncx>`
	var got []Entry
	if err := ParseNCX(strings.NewReader(input), "toc.ncx", collect(&got), nil); err != nil {
		t.Fatalf("ParseNCX failed: %v", err)
	}
	want := []Entry{
		{Title: "Part I", Href: "", Depth: 0},
		{Title: "Ch 1", Href: "c1.xhtml", Depth: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %+v, want %+v", got, want)
	}
}

func TestParseNCXTruncated(t *testing.T) {
	// Input ends mid-document; whatever was read is still delivered.
	input := `<ncx><navMap>
  <navPoint><navLabel><text>Ch 1</text></navLabel>`
	var got []Entry
	if err := ParseNCX(strings.NewReader(input), "toc.ncx", collect(&got), nil); err != nil {
		t.Fatalf("ParseNCX failed: %v", err)
	}
	want := []Entry{{Title: "Ch 1", Href: "", Depth: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %+v, want %+v", got, want)
	}
}

func TestParseNCXSinkError(t *testing.T) {
	boom := errors.New("boom")
	err := ParseNCX(strings.NewReader(testNCX), "toc.ncx", func(Entry) error { return boom }, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("ParseNCX error = %v, want the sink's error", err)
	}
}

const testNav = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Navigation</title></head>
<body>
<nav epub:type="toc" id="toc">
  <h1>Contents</h1>
  <ol>
    <li><a href="ch1.xhtml">Chapter One</a>
      <ol><li><a href="ch1.xhtml#s1">Section 1.1</a></li></ol>
    </li>
    <li><span>Part  Two</span>
      <ol><li><a href="../ch2.xhtml">Chapter Two</a></li></ol>
    </li>
  </ol>
</nav>
<nav epub:type="landmarks">
  <ol><li><a epub:type="bodymatter" href="ch1.xhtml">Start</a></li></ol>
</nav>
</body>
</html>`

func TestParseNav(t *testing.T) {
	var got []Entry
	if err := ParseNav(strings.NewReader(testNav), "OEBPS/text/nav.xhtml", collect(&got), nil); err != nil {
		t.Fatalf("ParseNav failed: %v", err)
	}
	want := []Entry{
		{Title: "Chapter One", Href: "OEBPS/text/ch1.xhtml", Depth: 0},
		{Title: "Section 1.1", Href: "OEBPS/text/ch1.xhtml#s1", Depth: 1},
		{Title: "Part Two", Href: "", Depth: 0},
		{Title: "Chapter Two", Href: "OEBPS/ch2.xhtml", Depth: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %+v, want %+v", got, want)
	}
}

func TestParseNavPlainTypeAttr(t *testing.T) {
	input := `<nav type="toc"><ol><li><a href="a.xhtml">A</a></li></ol></nav>`
	var got []Entry
	if err := ParseNav(strings.NewReader(input), "nav.xhtml", collect(&got), nil); err != nil {
		t.Fatalf("ParseNav failed: %v", err)
	}
	want := []Entry{{Title: "A", Href: "a.xhtml", Depth: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %+v, want %+v", got, want)
	}
}

func TestParseNavIgnoresOtherNavs(t *testing.T) {
	input := `<body>
<nav epub:type="landmarks"><ol><li><a href="x.xhtml">X</a></li></ol></nav>
<nav epub:type="toc"><ol><li><a href="a.xhtml">A</a></li></ol></nav>
<nav epub:type="toc"><ol><li><a href="b.xhtml">B</a></li></ol></nav>
</body>`
	var got []Entry
	if err := ParseNav(strings.NewReader(input), "nav.xhtml", collect(&got), nil); err != nil {
		t.Fatalf("ParseNav failed: %v", err)
	}
	// Only the first toc nav counts.
	want := []Entry{{Title: "A", Href: "a.xhtml", Depth: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %+v, want %+v", got, want)
	}
}

func TestParseNavLinkInsideSpan(t *testing.T) {
	// Nested inline markup inside the link contributes to the title.
	input := `<nav epub:type="toc"><ol><li><a href="a.xhtml"><span>A</span> Title</a></li></ol></nav>`
	var got []Entry
	if err := ParseNav(strings.NewReader(input), "nav.xhtml", collect(&got), nil); err != nil {
		t.Fatalf("ParseNav failed: %v", err)
	}
	want := []Entry{{Title: "A Title", Href: "a.xhtml", Depth: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %+v, want %+v", got, want)
	}
}

func TestParseNavBadNesting(t *testing.T) {
	// Stray end tags must not panic or error.
	input := `<nav epub:type="toc"></li></ol><ol><li><a href="a.xhtml">A</a></li></ol></nav>`
	var got []Entry
	if err := ParseNav(strings.NewReader(input), "nav.xhtml", collect(&got), nil); err != nil {
		t.Fatalf("ParseNav failed: %v", err)
	}
	if len(got) != 1 || got[0].Title != "A" {
		t.Errorf("entries = %+v, want single entry A", got)
	}
}

func TestParseNavSinkError(t *testing.T) {
	boom := errors.New("boom")
	err := ParseNav(strings.NewReader(testNav), "nav.xhtml", func(Entry) error { return boom }, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("ParseNav error = %v, want the sink's error", err)
	}
}
