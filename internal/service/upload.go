package service

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"wiselib/api/internal/media/sniffer"
)

const maxUploadBytes = 5 << 20

var ErrUploadTooLarge = errors.New("upload exceeds 5 MB")

type UploadInput struct {
	File   multipart.File
	Header *multipart.FileHeader
}

// readImage loads an uploaded raster image and checks that its bytes match
// the declared content type.
func readImage(input UploadInput) ([]byte, sniffer.Result, error) {
	if input.File == nil || input.Header == nil {
		return nil, sniffer.Result{}, fmt.Errorf("%w: missing file", ErrInvalidInput)
	}
	if input.Header.Size > maxUploadBytes {
		return nil, sniffer.Result{}, ErrUploadTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(input.File, maxUploadBytes+1))
	if err != nil {
		return nil, sniffer.Result{}, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil, sniffer.Result{}, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}
	if len(data) > maxUploadBytes {
		return nil, sniffer.Result{}, ErrUploadTooLarge
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	result, err := sniffer.DetectHead(head)
	if err != nil {
		return nil, sniffer.Result{}, fmt.Errorf("detect type: %w", err)
	}

	declared := sniffer.DeclaredMIME(http.Header(input.Header.Header))
	if declared != "" && declared != "application/octet-stream" && declared != result.MIME {
		return nil, sniffer.Result{}, fmt.Errorf("%w: declared %s, actual %s", sniffer.ErrUnsupportedType, declared, result.MIME)
	}
	return data, result, nil
}
