// Package sniffer identifies avatar image formats from their leading bytes.
package sniffer

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeSVG  MediaType = "svg"
)

// HeadSize is how many leading bytes Detect needs.
const HeadSize = 512

var ErrUnknownType = errors.New("unknown media type")

var mimeByType = map[MediaType]string{
	TypeJPEG: "image/jpeg",
	TypePNG:  "image/png",
	TypeGIF:  "image/gif",
	TypeWEBP: "image/webp",
	TypeSVG:  "image/svg+xml",
}

type Result struct {
	Type MediaType
	MIME string
}

// Extension is the file extension used for stored objects of this type.
func (r Result) Extension() string {
	if r.Type == TypeJPEG {
		return "jpg"
	}
	return string(r.Type)
}

var matchers = []struct {
	kind  MediaType
	match func([]byte) bool
}{
	{TypeJPEG, isJPEG},
	{TypePNG, isPNG},
	{TypeGIF, isGIF},
	{TypeWEBP, isWEBP},
	{TypeSVG, isSVG},
}

func Detect(data []byte) (Result, error) {
	head := data
	if len(head) > HeadSize {
		head = head[:HeadSize]
	}
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}
	for _, m := range matchers {
		if m.match(head) {
			return Result{Type: m.kind, MIME: mimeByType[m.kind]}, nil
		}
	}
	return Result{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 && head[0] == 0xff && head[1] == 0xd8 && head[2] == 0xff
}

func isPNG(head []byte) bool {
	magic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return bytes.HasPrefix(head, magic)
}

func isGIF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a"))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP"))
}

func isSVG(head []byte) bool {
	trimmed := strings.ToLower(strings.TrimSpace(string(head)))
	if strings.HasPrefix(trimmed, "<svg") {
		return true
	}
	return strings.HasPrefix(trimmed, "<?xml") && strings.Contains(trimmed, "<svg")
}

// DeclaredMIME returns the media type from a part's Content-Type header,
// without parameters.
func DeclaredMIME(header http.Header) string {
	contentType := header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
