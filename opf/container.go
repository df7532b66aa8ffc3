package opf

import (
	"errors"
	"fmt"
	"io"

	"github.com/jpirnay/crosspoint-reader/internal/hrefs"
	"github.com/jpirnay/crosspoint-reader/markup"
)

// ContainerPath is the fixed archive location of the OCF container
// descriptor.
const ContainerPath = "META-INF/container.xml"

// Container-related errors.
var (
	// ErrNoRootfile indicates a container descriptor without a usable
	// rootfile declaration.
	ErrNoRootfile = errors.New("opf: container declares no rootfile")
)

type containerScan struct {
	inRootfiles bool
	path        string
}

func (c *containerScan) StartElement(name string, attrs []markup.Attr) error {
	switch markup.Local(name) {
	case "rootfiles":
		c.inRootfiles = true
	case "rootfile":
		if c.inRootfiles && c.path == "" {
			c.path = hrefs.Resolve("", markup.AttrVal(attrs, "full-path"))
		}
	}
	return nil
}

func (c *containerScan) EndElement(name string) error {
	if markup.Local(name) == "rootfiles" {
		c.inRootfiles = false
	}
	return nil
}

func (c *containerScan) Text(string) error { return nil }

// ParseContainer reads an OCF container descriptor and returns the
// archive path of the first declared package document.
func ParseContainer(r io.Reader) (string, error) {
	var cs containerScan
	if err := markup.Scan(markup.NewDecodingReader(r), &cs); err != nil {
		return "", fmt.Errorf("opf: scan container: %w", err)
	}
	if cs.path == "" {
		return "", ErrNoRootfile
	}
	return cs.path, nil
}
