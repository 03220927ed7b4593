package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Word and PowerPoint documents are zip archives of XML parts. Only the text runs are
// read; styling, images and formulas are ignored.

func openArchive(data []byte) (*zip.Reader, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "not an OOXML archive")
	}
	return r, nil
}

func readPart(r *zip.Reader, name string) ([]byte, error) {
	f, err := r.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "missing part %s", name)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// paragraphs walks an XML part and returns the text of each element named
// para, joining the text of nested elements named run.
func paragraphs(data []byte, para, run string) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		out    []string
		cur    strings.Builder
		inPara bool
		inRun  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "malformed XML")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case para:
				inPara = true
				cur.Reset()
			case run:
				inRun = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case para:
				inPara = false
				out = append(out, cur.String())
			case run:
				inRun = false
			}
		case xml.CharData:
			if inPara && inRun {
				cur.Write(t)
			}
		}
	}
	return out, nil
}

func docxText(att Attachment) (string, error) {
	r, err := openArchive(att.Data)
	if err != nil {
		return "", err
	}
	body, err := readPart(r, "word/document.xml")
	if err != nil {
		return "", err
	}
	paras, err := paragraphs(body, "p", "t")
	if err != nil {
		return "", err
	}

	var kept []string
	for _, p := range paras {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n"), nil
}

func pptxText(att Attachment) (string, error) {
	r, err := openArchive(att.Data)
	if err != nil {
		return "", err
	}

	slides := numberedParts(r, "ppt/slides/slide")
	var b strings.Builder
	for i, name := range slides {
		data, err := readPart(r, name)
		if err != nil {
			return "", err
		}
		paras, err := paragraphs(data, "p", "t")
		if err != nil {
			return "", errors.Wrapf(err, "slide %d", i+1)
		}
		fmt.Fprintf(&b, "\n--- Slide %d ---\n", i+1)
		for _, p := range paras {
			if strings.TrimSpace(p) != "" {
				b.WriteString(p)
				b.WriteString("\n")
			}
		}
	}
	return b.String(), nil
}

// numberedParts returns the parts named <prefix>N.xml ordered by N
func numberedParts(r *zip.Reader, prefix string) []string {
	type part struct {
		name string
		n    int
	}
	var parts []part
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, prefix) || path.Ext(f.Name) != ".xml" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(f.Name, prefix), ".xml"))
		if err != nil {
			continue
		}
		parts = append(parts, part{name: f.Name, n: n})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].n < parts[j].n })

	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.name
	}
	return names
}

