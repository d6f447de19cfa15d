// Package normalize converts raw mailbox messages into canonical extraction
// input. Normalization is total: malformed or unsupported attachments are
// dropped with a warning annotation, never an error.
package normalize

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/propbooks/invoice-cli/internal/model"
)

// Attachment MIME types the model transport can accept natively.
var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Text-bearing attachment types are decoded and inlined as text blocks so
// the model reads them alongside the body.
var textTypes = map[string]bool{
	"text/plain": true,
	"text/csv":   true,
}

const docxType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Normalize derives the canonical ExtractionInput from a SourceMessage.
// The body is included verbatim with whitespace collapsed; attachments are
// classified by declared MIME type and embedded as content blocks with their
// original bytes, no re-encoding.
func Normalize(msg model.SourceMessage) model.ExtractionInput {
	input := model.ExtractionInput{
		MessageID:  msg.ID,
		Subject:    msg.Subject,
		Sender:     msg.Sender,
		ReceivedAt: msg.ReceivedAt,
		Text:       CollapseWhitespace(msg.Body),
	}

	for _, att := range msg.Attachments {
		mimeType := strings.ToLower(strings.TrimSpace(att.MIMEType))
		if idx := strings.Index(mimeType, ";"); idx >= 0 {
			mimeType = strings.TrimSpace(mimeType[:idx])
		}

		switch {
		case len(att.Data) == 0:
			input.Warnings = append(input.Warnings,
				fmt.Sprintf("attachment %q is empty, dropped", att.Filename))

		case imageTypes[mimeType]:
			input.Blocks = append(input.Blocks, model.ContentBlock{
				Kind:     model.BlockImage,
				MIMEType: mimeType,
				Data:     att.Data,
				Filename: att.Filename,
			})

		case mimeType == "application/pdf":
			input.Blocks = append(input.Blocks, model.ContentBlock{
				Kind:     model.BlockDocument,
				MIMEType: mimeType,
				Data:     att.Data,
				Filename: att.Filename,
			})

		case mimeType == docxType:
			text, err := extractDOCXText(att.Data)
			if err != nil {
				input.Warnings = append(input.Warnings,
					fmt.Sprintf("attachment %q is not a readable docx, dropped", att.Filename))
				continue
			}
			if strings.TrimSpace(text) == "" {
				input.Warnings = append(input.Warnings,
					fmt.Sprintf("attachment %q contains no text, dropped", att.Filename))
				continue
			}
			input.Blocks = append(input.Blocks, model.ContentBlock{
				Kind:     model.BlockText,
				MIMEType: mimeType,
				Text:     CollapseWhitespace(text),
				Filename: att.Filename,
			})

		case textTypes[mimeType]:
			if !utf8.Valid(att.Data) {
				input.Warnings = append(input.Warnings,
					fmt.Sprintf("attachment %q declared %s but is not valid text, dropped", att.Filename, mimeType))
				continue
			}
			input.Blocks = append(input.Blocks, model.ContentBlock{
				Kind:     model.BlockText,
				MIMEType: mimeType,
				Text:     CollapseWhitespace(string(att.Data)),
				Filename: att.Filename,
			})

		default:
			input.Warnings = append(input.Warnings,
				fmt.Sprintf("attachment %q has unsupported type %s, dropped", att.Filename, att.MIMEType))
		}
	}

	return input
}

// CollapseWhitespace collapses runs of spaces and tabs to a single space and
// runs of blank lines to a single blank line, preserving line structure.
func CollapseWhitespace(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")

	var out []string
	blankRun := 0
	for _, line := range lines {
		collapsed := strings.Join(strings.Fields(line), " ")
		if collapsed == "" {
			blankRun++
			if blankRun > 1 {
				continue
			}
		} else {
			blankRun = 0
		}
		out = append(out, collapsed)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// extractDOCXText pulls the paragraph text out of a DOCX attachment. A DOCX
// file is a zip archive whose word/document.xml carries the text in <w:t>
// runs grouped into <w:p> paragraphs.
func extractDOCXText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", eris.Wrap(err, "normalize: open docx archive")
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			part = f
			break
		}
	}
	if part == nil {
		return "", eris.New("normalize: docx has no word/document.xml")
	}

	rc, err := part.Open()
	if err != nil {
		return "", eris.Wrap(err, "normalize: open docx document part")
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var b strings.Builder
	inRun := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", eris.Wrap(err, "normalize: decode docx document part")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inRun = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRun = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inRun {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
