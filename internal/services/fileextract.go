package services

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Upload kinds
const (
	FileKindDocument = "document"
	FileKindAudio    = "audio"
	FileKindImage    = "image"
)

// ErrNoText is returned when a document holds no readable text.
var ErrNoText = errors.New("no extractable text")

type fileFormat struct {
	kind     string
	mimeType string
}

var supportedFiles = map[string]fileFormat{
	".pdf":  {FileKindDocument, "application/pdf"},
	".docx": {FileKindDocument, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	".txt":  {FileKindDocument, "text/plain"},
	".mp3":  {FileKindAudio, "audio/mpeg"},
	".wav":  {FileKindAudio, "audio/wav"},
	".m4a":  {FileKindAudio, "audio/mp4"},
	".mp4":  {FileKindAudio, "video/mp4"},
	".png":  {FileKindImage, "image/png"},
	".jpg":  {FileKindImage, "image/jpeg"},
	".jpeg": {FileKindImage, "image/jpeg"},
	".webp": {FileKindImage, "image/webp"},
}

// ClassifyFile maps a file name to its upload kind and the MIME type sent to Gemini.
func ClassifyFile(filename string) (kind, mimeType string, ok bool) {
	f, ok := supportedFiles[strings.ToLower(filepath.Ext(filename))]
	return f.kind, f.mimeType, ok
}

// FileExtractService reads the text of uploaded documents.
type FileExtractService struct{}

func NewFileExtractService() *FileExtractService {
	return &FileExtractService{}
}

// ExtractDocument returns the normalized text of a .txt, .pdf or .docx file.
func (s *FileExtractService) ExtractDocument(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		raw string
		err error
	)
	switch ext {
	case ".txt":
		raw, err = readPlainText(path)
	case ".pdf":
		raw, err = readPDFText(path)
	case ".docx":
		raw, err = readDOCXText(path)
	default:
		return "", fmt.Errorf("unsupported document type %q", ext)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", ext, err)
	}

	text := normalizeExtractedText(raw)
	if text == "" {
		return "", fmt.Errorf("%s: %w", ext, ErrNoText)
	}
	return text, nil
}

func readPlainText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(b) {
		return "", errors.New("file is not UTF-8 text")
	}
	return string(b), nil
}

// readPDFText joins the plain text of every page, skipping pages that fail to decode.
func readPDFText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fonts := make(map[string]*pdf.Font)
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func readDOCXText(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return docxBodyText(rc)
	}
	return "", errors.New("word/document.xml not found")
}

// docxBodyText walks WordprocessingML and keeps run text, tabs and line breaks.
// Each paragraph ends with a newline.
func docxBodyText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
}

// normalizeExtractedText trims every line and collapses runs of blank lines to one.
func normalizeExtractedText(s string) string {
	s = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(s)

	var b strings.Builder
	pendingBlank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			pendingBlank = b.Len() > 0
			continue
		}
		if pendingBlank {
			b.WriteByte('\n')
			pendingBlank = false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}
