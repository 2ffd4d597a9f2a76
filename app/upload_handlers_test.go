package roomchat

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// upload posts content as the image field with the declared content type.
// An empty field name posts a form without a file.
func (f *appFixture) upload(client *http.Client, field, contentType string, content []byte) (*http.Response, UploadResponse) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="upload"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(f.t, err)
		_, err = part.Write(content)
		require.NoError(f.t, err)
	} else {
		require.NoError(f.t, mw.WriteField("note", "nothing"))
	}
	require.NoError(f.t, mw.Close())

	res, err := client.Post(f.server.URL+"/upload", mw.FormDataContentType(), &body)
	require.NoError(f.t, err)
	defer res.Body.Close()

	var out UploadResponse
	decodeJSON(f.t, res, &out)
	return res, out
}

func (f *appFixture) storedImages() []string {
	entries, err := os.ReadDir(f.config.Media.Dir)
	require.NoError(f.t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUploadResizesImage(t *testing.T) {
	f := newAppFixture(t)
	defer f.tearDown()

	client := f.signUp("alice")

	tcs := []struct {
		name       string
		w, h       int
		expW, expH int
	}{
		{name: "larger than the box", w: 2000, h: 1000, expW: 1280, expH: 640},
		{name: "taller than the box", w: 300, h: 1440, expW: 150, expH: 720},
		{name: "smaller than the box", w: 64, h: 48, expW: 64, expH: 48},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			res, out := f.upload(client, "image", "image/png", pngBytes(t, tc.w, tc.h))
			require.Equal(t, http.StatusOK, res.StatusCode)
			require.True(t, out.Success)
			require.True(t, strings.HasPrefix(out.ImageURL, imageURLPrefix))
			assert.True(t, strings.HasSuffix(out.ImageURL, ".jpg"))

			served := f.get(client, out.ImageURL)
			require.Equal(t, http.StatusOK, served.StatusCode)
			cfg, err := jpeg.DecodeConfig(served.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.expW, cfg.Width)
			assert.Equal(t, tc.expH, cfg.Height)
		})
	}

	for _, name := range f.storedImages() {
		assert.False(t, strings.HasSuffix(name, ".compressed"), name)
	}
	assert.Equal(t, http.StatusNotFound, f.get(client, imageURLPrefix).StatusCode)
}

func TestUploadRejections(t *testing.T) {
	f := newAppFixture(t, func(c *Config) {
		c.Media.MaxUpload = 4 << 10
		c.Media.MaxPixels = 100 * 100
	})
	defer f.tearDown()

	client := f.signUp("alice")
	// valid PNG signature with a broken body
	corrupt := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x42}, 64)...)

	tcs := []struct {
		name        string
		client      *http.Client
		field       string
		contentType string
		content     []byte
		status      int
		message     string
	}{
		{name: "no session", client: f.client(), field: "image", contentType: "image/png",
			content: pngBytes(t, 4, 4), status: http.StatusForbidden, message: "Not authenticated"},
		{name: "no file", client: client, status: http.StatusBadRequest, message: "No file uploaded"},
		{name: "declared as text", client: client, field: "image", contentType: "text/plain",
			content: pngBytes(t, 4, 4), status: http.StatusBadRequest, message: "Only image files are allowed!"},
		{name: "content is not an image", client: client, field: "image", contentType: "image/png",
			content: []byte("just some text"), status: http.StatusBadRequest, message: "Only image files are allowed!"},
		{name: "too large", client: client, field: "image", contentType: "image/png",
			content: bytes.Repeat([]byte{0}, 8<<10), status: http.StatusRequestEntityTooLarge, message: "File too large"},
		{name: "undecodable", client: client, field: "image", contentType: "image/png",
			content: corrupt, status: http.StatusInternalServerError, message: "Error processing image"},
		{name: "too many pixels", client: client, field: "image", contentType: "image/png",
			content: pngBytes(t, 200, 200), status: http.StatusInternalServerError, message: "Error processing image"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			res, out := f.upload(tc.client, tc.field, tc.contentType, tc.content)
			assert.Equal(t, tc.status, res.StatusCode)
			assert.Equal(t, UploadResponse{Message: tc.message}, out)
		})
	}

	assert.Empty(t, f.storedImages())
}

func TestImagesAreConfinedToMediaDir(t *testing.T) {
	f := newAppFixture(t)
	defer f.tearDown()

	require.NoError(t, os.WriteFile(filepath.Join(f.config.Storage.ConfigDir, "note.txt"), []byte("x"), 0o644))
	res := f.get(f.client(), imageURLPrefix+"../config/note.txt")
	assert.NotEqual(t, http.StatusOK, res.StatusCode)
}
