package opf

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/beevik/etree"
)

func TestParseContainer(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name: "single rootfile",
			input: `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`,
			want: "OEBPS/content.opf",
		},
		{
			name: "first of several rootfiles",
			input: `<container><rootfiles>
  <rootfile full-path="first.opf"/>
  <rootfile full-path="second.opf"/>
</rootfiles></container>`,
			want: "first.opf",
		},
		{
			name:    "no rootfile element",
			input:   `<container><rootfiles></rootfiles></container>`,
			wantErr: ErrNoRootfile,
		},
		{
			name:    "rootfile outside rootfiles",
			input:   `<container><rootfile full-path="x.opf"/></container>`,
			wantErr: ErrNoRootfile,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: ErrNoRootfile,
		},
		{
			name:    "garbage input",
			input:   "this is not xml at all",
			wantErr: ErrNoRootfile,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseContainer(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseContainer error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseContainer failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("rootfile path = %q, want %q", got, tt.want)
			}
		})
	}
}

const fullOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>A First Title</dc:title>
    <dc:title>A Second Title</dc:title>
    <dc:creator>Jane Author</dc:creator>
    <dc:language>EN-US</dc:language>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="style" href="css/book.css" media-type="text/css"/>
    <item id="style2" href="css/extra.css" media-type="text/css"/>
    <item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch3" href="text/ch3.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
    <itemref idref="missing"/>
    <itemref idref="ch3"/>
  </spine>
  <guide>
    <reference type="cover" href="cover.xhtml"/>
    <reference type="text" href="text/ch1.xhtml#start"/>
  </guide>
</package>`

func TestParse(t *testing.T) {
	var spine []string
	doc, err := Parse(strings.NewReader(fullOPF), "OEBPS/content.opf", func(href string) error {
		spine = append(spine, href)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if doc.Title != "A First Title" {
		t.Errorf("Title = %q, want first occurrence to win", doc.Title)
	}
	if doc.Author != "Jane Author" {
		t.Errorf("Author = %q, want %q", doc.Author, "Jane Author")
	}
	if doc.Language != "en-US" {
		t.Errorf("Language = %q, want canonical %q", doc.Language, "en-US")
	}
	if doc.CoverHref != "OEBPS/images/cover.jpg" {
		t.Errorf("CoverHref = %q, want %q", doc.CoverHref, "OEBPS/images/cover.jpg")
	}
	if doc.NavHref != "OEBPS/nav.xhtml" {
		t.Errorf("NavHref = %q, want %q", doc.NavHref, "OEBPS/nav.xhtml")
	}
	if doc.NCXHref != "OEBPS/toc.ncx" {
		t.Errorf("NCXHref = %q, want %q", doc.NCXHref, "OEBPS/toc.ncx")
	}
	if doc.TextRefHref != "OEBPS/text/ch1.xhtml" {
		t.Errorf("TextRefHref = %q, want fragment stripped %q", doc.TextRefHref, "OEBPS/text/ch1.xhtml")
	}

	wantCSS := []string{"OEBPS/css/book.css", "OEBPS/css/extra.css"}
	if !reflect.DeepEqual(doc.CSSHrefs, wantCSS) {
		t.Errorf("CSSHrefs = %v, want %v", doc.CSSHrefs, wantCSS)
	}

	wantSpine := []string{"OEBPS/text/ch1.xhtml", "OEBPS/text/ch2.xhtml", "OEBPS/text/ch3.xhtml"}
	if !reflect.DeepEqual(spine, wantSpine) {
		t.Errorf("spine = %v, want %v", spine, wantSpine)
	}
	if doc.SpineCount != 3 {
		t.Errorf("SpineCount = %d, want 3", doc.SpineCount)
	}
}

func TestParseCoverPrecedence(t *testing.T) {
	const tmpl = `<package>
  <metadata>%s</metadata>
  <manifest>%s</manifest>
  <spine/>
</package>`

	tests := []struct {
		name     string
		metadata string
		manifest string
		want     string
	}{
		{
			name:     "properties beats meta reference",
			metadata: `<meta name="cover" content="old"/>`,
			manifest: `<item id="old" href="old.jpg" media-type="image/jpeg"/>
<item id="new" href="new.jpg" media-type="image/jpeg" properties="cover-image"/>`,
			want: "new.jpg",
		},
		{
			name:     "meta reference beats id heuristic",
			metadata: `<meta name="cover" content="m"/>`,
			manifest: `<item id="cover" href="byid.jpg" media-type="image/jpeg"/>
<item id="m" href="bymeta.jpg" media-type="image/jpeg"/>`,
			want: "bymeta.jpg",
		},
		{
			name:     "id heuristic alone",
			metadata: ``,
			manifest: `<item id="cover" href="byid.jpg" media-type="image/jpeg"/>`,
			want:     "byid.jpg",
		},
		{
			name:     "id heuristic requires image media type",
			metadata: ``,
			manifest: `<item id="cover" href="cover.xhtml" media-type="application/xhtml+xml"/>`,
			want:     "",
		},
		{
			name:     "meta reference to missing id falls back",
			metadata: `<meta name="cover" content="nope"/>`,
			manifest: `<item id="cover-image" href="byid.png" media-type="image/png"/>`,
			want:     "byid.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := fmt.Sprintf(tmpl, tt.metadata, tt.manifest)
			doc, err := Parse(strings.NewReader(input), "content.opf", nil, nil)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if doc.CoverHref != tt.want {
				t.Errorf("CoverHref = %q, want %q", doc.CoverHref, tt.want)
			}
		})
	}
}

func TestParseNCXFallback(t *testing.T) {
	// Without a spine toc attribute the NCX is found by media type.
	input := `<package><manifest>
  <item id="x" href="book.ncx" media-type="application/x-dtbncx+xml"/>
</manifest><spine/></package>`
	doc, err := Parse(strings.NewReader(input), "content.opf", nil, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.NCXHref != "book.ncx" {
		t.Errorf("NCXHref = %q, want %q", doc.NCXHref, "book.ncx")
	}
}

func TestParseSpineFuncError(t *testing.T) {
	sink := errors.New("sink failed")
	_, err := Parse(strings.NewReader(fullOPF), "OEBPS/content.opf", func(string) error {
		return sink
	}, nil)
	if !errors.Is(err, sink) {
		t.Fatalf("Parse error = %v, want the spine callback's error", err)
	}
}

func TestParseNilSpineFunc(t *testing.T) {
	doc, err := Parse(strings.NewReader(fullOPF), "OEBPS/content.opf", nil, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.SpineCount != 3 {
		t.Errorf("SpineCount = %d, want 3", doc.SpineCount)
	}
}

// buildOPF assembles a package document with the given spine chapters.
func buildOPF(t *testing.T, title string, chapters []string) string {
	t.Helper()
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	pkg.CreateAttr("version", "3.0")

	meta := pkg.CreateElement("metadata")
	meta.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	meta.CreateElement("dc:title").SetText(title)
	meta.CreateElement("dc:language").SetText("en")

	manifest := pkg.CreateElement("manifest")
	spine := pkg.CreateElement("spine")
	for i, href := range chapters {
		item := manifest.CreateElement("item")
		id := fmt.Sprintf("c%d", i)
		item.CreateAttr("id", id)
		item.CreateAttr("href", href)
		item.CreateAttr("media-type", "application/xhtml+xml")
		spine.CreateElement("itemref").CreateAttr("idref", id)
	}

	out, err := doc.WriteToString()
	if err != nil {
		t.Fatalf("WriteToString failed: %v", err)
	}
	return out
}

func TestParseGeneratedDocument(t *testing.T) {
	chapters := []string{"a.xhtml", "sub/b.xhtml", "c.xhtml"}
	input := buildOPF(t, "Generated", chapters)

	var spine []string
	doc, err := Parse(strings.NewReader(input), "OPS/package.opf", func(href string) error {
		spine = append(spine, href)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.Title != "Generated" {
		t.Errorf("Title = %q, want %q", doc.Title, "Generated")
	}
	want := []string{"OPS/a.xhtml", "OPS/sub/b.xhtml", "OPS/c.xhtml"}
	if !reflect.DeepEqual(spine, want) {
		t.Errorf("spine = %v, want %v", spine, want)
	}
}
