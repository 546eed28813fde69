package sniffer

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
)

var ErrUnsupportedType = errors.New("unsupported image type")

type Result struct {
	Type MediaType
	MIME string
}

var signatures = []struct {
	magic  []byte
	result Result
}{
	{[]byte{0xff, 0xd8, 0xff}, Result{TypeJPEG, "image/jpeg"}},
	{[]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, Result{TypePNG, "image/png"}},
	{[]byte("GIF87a"), Result{TypeGIF, "image/gif"}},
	{[]byte("GIF89a"), Result{TypeGIF, "image/gif"}},
}

// DetectHead identifies the raster formats the profile and badge uploads
// accept from the first bytes of a file.
func DetectHead(head []byte) (Result, error) {
	for _, sig := range signatures {
		if bytes.HasPrefix(head, sig.magic) {
			return sig.result, nil
		}
	}
	return Result{}, ErrUnsupportedType
}

// DeclaredMIME returns the media type of a multipart part header without
// parameters.
func DeclaredMIME(header http.Header) string {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}
