package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newTestArchive writes a zip container with a stored mimetype entry
// followed by the given deflated files.
func newTestArchive(t *testing.T, files map[string]string) *Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	zw := zip.NewWriter(f)

	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("create mimetype: %v", err)
	}
	if _, err := mt.Write([]byte("application/epub+zip")); err != nil {
		t.Fatalf("write mimetype: %v", err)
	}

	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return NewReader(path, nil)
}

func TestReaderBasics(t *testing.T) {
	content := strings.Repeat("the quick brown fox ", 100)
	r := newTestArchive(t, map[string]string{
		"OEBPS/content.opf":    "<package/>",
		"OEBPS/text/ch1.xhtml": content,
	})

	if !r.Exists("OEBPS/content.opf") {
		t.Error("Exists(OEBPS/content.opf) = false, want true")
	}
	if r.Exists("OEBPS/nope.xhtml") {
		t.Error("Exists(OEBPS/nope.xhtml) = true, want false")
	}

	size, err := r.InflatedSize("OEBPS/text/ch1.xhtml")
	if err != nil {
		t.Fatalf("InflatedSize failed: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("InflatedSize = %d, want %d", size, len(content))
	}

	data, err := r.ReadAll("OEBPS/text/ch1.xhtml")
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != content {
		t.Error("ReadAll content mismatch")
	}
}

func TestReaderCopyTo(t *testing.T) {
	content := strings.Repeat("x", 10_000)
	r := newTestArchive(t, map[string]string{"big.xhtml": content})

	var buf bytes.Buffer
	if err := r.CopyTo("big.xhtml", &buf, 512); err != nil {
		t.Fatalf("CopyTo failed: %v", err)
	}
	if buf.String() != content {
		t.Error("CopyTo content mismatch")
	}
}

func TestReaderCaseInsensitive(t *testing.T) {
	r := newTestArchive(t, map[string]string{"OEBPS/Images/Cover.JPG": "jpegdata"})

	if !r.Exists("oebps/images/cover.jpg") {
		t.Fatal("case-insensitive Exists failed")
	}
	data, err := r.ReadAll("OEBPS/images/cover.jpg")
	if err != nil {
		t.Fatalf("case-insensitive ReadAll failed: %v", err)
	}
	if string(data) != "jpegdata" {
		t.Error("case-insensitive ReadAll content mismatch")
	}
}

func TestReaderNotFound(t *testing.T) {
	r := newTestArchive(t, map[string]string{"a.xhtml": "a"})

	if _, err := r.ReadAll("missing.xhtml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadAll error = %v, want ErrNotFound", err)
	}
	if _, err := r.InflatedSize("missing.xhtml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("InflatedSize error = %v, want ErrNotFound", err)
	}
	if _, err := r.ReadAll(""); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadAll(\"\") error = %v, want ErrNotFound", err)
	}
}

func TestReaderMissingContainer(t *testing.T) {
	r := NewReader(filepath.Join(t.TempDir(), "nope.epub"), nil)

	if r.Exists("anything") {
		t.Error("Exists on missing container = true, want false")
	}
	if _, err := r.ReadAll("anything"); err == nil {
		t.Error("ReadAll on missing container succeeded, want error")
	}
}

func TestReaderOpenScoped(t *testing.T) {
	// The container is reopened per call, so earlier readers stay
	// usable after later operations complete.
	r := newTestArchive(t, map[string]string{"a.xhtml": "alpha", "b.xhtml": "beta"})

	ra, err := r.Open("a.xhtml")
	if err != nil {
		t.Fatalf("Open(a) failed: %v", err)
	}
	defer ra.Close()

	if _, err := r.ReadAll("b.xhtml"); err != nil {
		t.Fatalf("ReadAll(b) while a open failed: %v", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(ra); err != nil {
		t.Fatalf("read from open item failed: %v", err)
	}
	if buf.String() != "alpha" {
		t.Errorf("open item read %q, want %q", buf.String(), "alpha")
	}
}
