package roomchat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/putto11262002/roomchat/core"
	"github.com/putto11262002/roomchat/pkg/media"
)

// multipartOverhead is allowed on top of the file size limit for the
// multipart framing.
const multipartOverhead = 64 << 10

type UploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

func writeUploadResponse(w http.ResponseWriter, status int, res UploadResponse) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(res)
}

func uploadFailure(w http.ResponseWriter, status int, message string) error {
	return writeUploadResponse(w, status, UploadResponse{Message: message})
}

func isBodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr) || strings.Contains(err.Error(), "request body too large")
}

// UploadHandler stores an image and returns the URL it is served from. The
// image is re-encoded as a JPEG that fits the configured box.
func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) error {
	session, ok := core.LookupSession(r)
	if !ok {
		return uploadFailure(w, http.StatusForbidden, "Not authenticated")
	}

	maxUpload := app.config.Media.MaxUpload
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		if isBodyTooLarge(err) {
			return uploadFailure(w, http.StatusRequestEntityTooLarge, "File too large")
		}
		return uploadFailure(w, http.StatusBadRequest, "No file uploaded")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		return uploadFailure(w, http.StatusBadRequest, "No file uploaded")
	}
	defer file.Close()

	if header.Size > maxUpload {
		return uploadFailure(w, http.StatusRequestEntityTooLarge, "File too large")
	}
	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		return uploadFailure(w, http.StatusBadRequest, "Only image files are allowed!")
	}
	if _, isImage, err := media.Sniff(file); err != nil || !isImage {
		return uploadFailure(w, http.StatusBadRequest, "Only image files are allowed!")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind upload: %w", err)
	}

	name := fmt.Sprintf("%d-%d.jpg", app.now().UnixMilli(), rand.IntN(1e9))
	dst := filepath.Join(app.config.Media.Dir, name)
	if err := saveUpload(file, dst); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}

	if err := media.CompressFile(dst, app.mediaOptions()); err != nil {
		app.logger.Error("processing image", slog.String("user", session.Username),
			slog.String("file", name), slog.String("err", err.Error()))
		return uploadFailure(w, http.StatusInternalServerError, "Error processing image")
	}

	app.logger.Debug("image uploaded", slog.String("user", session.Username), slog.String("file", name))
	return writeUploadResponse(w, http.StatusOK, UploadResponse{Success: true, ImageURL: imageURLPrefix + name})
}

func saveUpload(src multipart.File, dst string) error {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	return f.Close()
}

func (app *App) mediaOptions() media.Options {
	return media.Options{
		MaxWidth:  app.config.Media.MaxWidth,
		MaxHeight: app.config.Media.MaxHeight,
		Quality:   app.config.Media.Quality,
		MaxPixels: app.config.Media.MaxPixels,
	}
}

// imagesHandler serves uploaded images. Directory listings are not served.
func (app *App) imagesHandler() http.Handler {
	files := http.StripPrefix(imageURLPrefix, http.FileServer(http.Dir(app.config.Media.Dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
