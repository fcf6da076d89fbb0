package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"GISData-App/internal/domain/model"
)

// maxKMLEntryBytes 展開後のKMLサイズ上限
const maxKMLEntryBytes = 256 << 20

type kmzParser struct {
	kml FormatParser
}

// NewKMZParser KMZ（KMLを含むZIP）のパーサー。展開したKMLは kml に委譲する
func NewKMZParser(kml FormatParser) FormatParser {
	return &kmzParser{kml: kml}
}

func (p *kmzParser) FileType() model.FileType {
	return model.FileTypeKMZ
}

func (p *kmzParser) Parse(data []byte, stem string) ([]model.CanonicalFeature, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, model.NewParseError("invalid KMZ archive", err)
	}

	entry := findKMLEntry(zr)
	if entry == nil {
		return nil, model.NewParseError("no .kml file found in KMZ archive", nil)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, model.NewParseError(fmt.Sprintf("cannot open %s in KMZ archive", entry.Name), err)
	}
	defer rc.Close()

	kml, err := io.ReadAll(io.LimitReader(rc, maxKMLEntryBytes+1))
	if err != nil {
		return nil, model.NewParseError(fmt.Sprintf("cannot read %s in KMZ archive", entry.Name), err)
	}
	if len(kml) > maxKMLEntryBytes {
		return nil, model.NewParseError(fmt.Sprintf("%s in KMZ archive is too large", entry.Name), nil)
	}

	return p.kml.Parse(kml, stem)
}

// findKMLEntry doc.kml を優先し、なければ最初の .kml を返す
func findKMLEntry(zr *zip.Reader) *zip.File {
	var first *zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "__MACOSX/") || !strings.EqualFold(path.Ext(f.Name), ".kml") {
			continue
		}
		if strings.EqualFold(path.Base(f.Name), "doc.kml") {
			return f
		}
		if first == nil {
			first = f
		}
	}
	return first
}
