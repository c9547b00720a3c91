package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	extErrors "github.com/pkg/errors"
)

// MaxImageSize is the largest accepted image upload in bytes
const MaxImageSize = 10 << 20

// ErrUnsupportedImage is returned for uploads that are not png or jpeg images
var ErrUnsupportedImage = errors.New("Only png, jpg and jpeg images are accepted")

// ErrImageTooLarge is returned for uploads over MaxImageSize
var ErrImageTooLarge = errors.New("Image is too large")

// ErrNoImage is returned when a multipart request carries no file under the expected field
var ErrNoImage = errors.New("Request has no image file")

var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// SaveImage checks that data named filename is a png or jpeg image and stores it under a fresh
// name starting with prefix. The returned reference can be used as a portrait, cover or guest picture.
func SaveImage(ctx context.Context, blobs BlobStore, prefix, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := imageExtensions[ext]
	if !ok {
		return "", ErrUnsupportedImage
	}
	data, err := ioutil.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return "", extErrors.Wrap(err, "Cannot read upload")
	}
	if len(data) > MaxImageSize {
		return "", ErrImageTooLarge
	}
	if http.DetectContentType(data) != want {
		return "", ErrUnsupportedImage
	}
	return blobs.Save(ctx, fmt.Sprintf("%s_%s%s", prefix, uuid.New().String(), ext), data)
}

// Exists reports whether ref resolves in blobs
func Exists(ctx context.Context, blobs BlobStore, ref string) (bool, error) {
	rc, err := blobs.Open(ctx, ref)
	if errors.Is(err, ErrBlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	rc.Close()
	return true, nil
}

// FormImage returns the file uploaded under field of a multipart request, with its client-side name.
// The request body is capped a little above MaxImageSize.
func FormImage(w http.ResponseWriter, r *http.Request, field string) (multipart.File, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageSize+1<<20)
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", ErrNoImage
	}
	return file, header.Filename, nil
}

// IsUploadError reports whether err is a client mistake in an image upload
func IsUploadError(err error) bool {
	return errors.Is(err, ErrUnsupportedImage) || errors.Is(err, ErrImageTooLarge) || errors.Is(err, ErrNoImage)
}
