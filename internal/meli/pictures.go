package meli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"biciadmin/internal/domain"
	applog "biciadmin/internal/log"
	"biciadmin/internal/storage"
)

// MaxPictureBytes is MercadoLibre's hard limit per picture.
const MaxPictureBytes = 10 << 20

const (
	compressSuffix  = "_compressed.jpg"
	compressMaxSide = 1920
	compressQuality = 85
)

// Picture is an uploaded marketplace picture reference.
type Picture struct {
	ID string `json:"id"`
}

// UploadReport carries the successfully uploaded pictures plus the batch
// summary. Callers must accept fewer pictures than inputs and proceed.
type UploadReport struct {
	Pictures  []Picture `json:"pictures"`
	Attempted int       `json:"attempted"`
	Uploaded  int       `json:"uploaded"`
	Skipped   int       `json:"skipped"`
}

// PictureUploader validates, compresses and uploads local product images.
// All path resolution goes through the shared uploads confinement before any
// filesystem access.
type PictureUploader struct {
	API     *Client
	Uploads *storage.Uploads
}

func NewPictureUploader(api *Client, uploads *storage.Uploads) *PictureUploader {
	return &PictureUploader{API: api, Uploads: uploads}
}

// Upload processes images one by one with per-image isolation: a missing
// file, an incompressible oversize image or a rejected upload is logged and
// skipped, never aborting the rest. Temporary compressed files are removed
// after the batch.
func (u *PictureUploader) Upload(ctx context.Context, images []domain.ProductImage) UploadReport {
	report := UploadReport{Pictures: []Picture{}, Attempted: len(images)}
	var tempFiles []string

	for _, img := range images {
		name := localName(img)
		if name == "" {
			applog.Warn(nil, "ml.pictures.invalid_ref", map[string]any{"src": img.Src})
			report.Skipped++
			continue
		}

		path, err := u.Uploads.ResolvePath(name)
		if err != nil {
			applog.Security(nil, "ml.pictures.path_rejected", map[string]any{"name": name, "err": err.Error()})
			report.Skipped++
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			applog.Warn(nil, "ml.pictures.missing", map[string]any{"path": path})
			report.Skipped++
			continue
		}

		if info.Size() > MaxPictureBytes {
			compressed, err := u.compress(path)
			if err != nil {
				applog.Error(nil, "ml.pictures.compress", err, map[string]any{"path": path})
				report.Skipped++
				continue
			}
			tempFiles = append(tempFiles, compressed)
			cInfo, err := os.Stat(compressed)
			if err != nil || cInfo.Size() > MaxPictureBytes {
				applog.Warn(nil, "ml.pictures.still_too_large", map[string]any{"path": compressed})
				report.Skipped++
				continue
			}
			path = compressed
		}

		pic, err := u.post(ctx, path)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				applog.Error(nil, "ml.pictures.upload", err, map[string]any{
					"file": filepath.Base(path), "status": apiErr.Status, "body": string(apiErr.Body),
				})
			} else {
				applog.Error(nil, "ml.pictures.upload", err, map[string]any{"file": filepath.Base(path)})
			}
			report.Skipped++
			continue
		}
		report.Pictures = append(report.Pictures, pic)
		report.Uploaded++
	}

	for _, f := range tempFiles {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			applog.Warn(nil, "ml.pictures.cleanup", map[string]any{"file": f, "err": err.Error()})
		}
	}

	applog.Info(nil, "ml.pictures.summary", map[string]any{
		"attempted": report.Attempted, "uploaded": report.Uploaded, "skipped": report.Skipped,
	})
	return report
}

// localName extracts the confined filename from an image reference,
// preferring the public src path.
func localName(img domain.ProductImage) string {
	if strings.HasPrefix(img.Src, "/uploads/") {
		return filepath.Base(img.Src)
	}
	return img.Filename
}

// compress re-encodes the image as a quality-85 JPEG, resized to fit within
// 1920×1920 without upscaling. The output lives next to the original with a
// _compressed.jpg suffix and is removed after the batch.
func (u *PictureUploader) compress(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}
	b := img.Bounds()
	if b.Dx() > compressMaxSide || b.Dy() > compressMaxSide {
		img = imaging.Fit(img, compressMaxSide, compressMaxSide, imaging.Lanczos)
	}

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + compressSuffix
	dst, err := u.Uploads.ResolvePath(name)
	if err != nil {
		return "", err
	}
	if err := imaging.Save(img, dst, imaging.JPEGQuality(compressQuality)); err != nil {
		return "", err
	}
	return dst, nil
}

func (u *PictureUploader) post(ctx context.Context, path string) (Picture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Picture{}, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return Picture{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Picture{}, err
	}
	if err := w.Close(); err != nil {
		return Picture{}, err
	}

	resp, err := u.API.Request(ctx, http.MethodPost, "/pictures", buf.Bytes(),
		map[string]string{"Content-Type": w.FormDataContentType()})
	if err != nil {
		return Picture{}, err
	}

	var pic Picture
	if err := json.Unmarshal(resp, &pic); err != nil {
		return Picture{}, err
	}
	if pic.ID == "" {
		return Picture{}, fmt.Errorf("picture upload response missing id")
	}
	return pic, nil
}
