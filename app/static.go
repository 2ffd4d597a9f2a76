package roomchat

import (
	"crypto/sha1"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// StaticFS serves a file tree with etag and cache control support. Paths
// that do not name a file, directories included, are answered with 404.
type StaticFS struct {
	fsys  fs.FS
	etags map[string]string
	// a map of globs to cache control headers
	cacheControl map[string]string
}

func NewStaticFS(fsys fs.FS, cacheControl map[string]string) (*StaticFS, error) {
	etags, err := calculateEtags(fsys)
	if err != nil {
		return nil, fmt.Errorf("calculating etags: %w", err)
	}
	cc, err := expandCacheControl(etags, cacheControl)
	if err != nil {
		return nil, fmt.Errorf("expanding cache control paths: %w", err)
	}
	return &StaticFS{fsys: fsys, etags: etags, cacheControl: cc}, nil
}

func calculateEtags(fsys fs.FS) (map[string]string, error) {
	etags := make(map[string]string)
	return etags, fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := fsys.Open(p)
		if err != nil {
			return fmt.Errorf("opening %s: %w", p, err)
		}
		defer f.Close()

		hasher := sha1.New()
		if _, err := io.Copy(hasher, f); err != nil {
			return fmt.Errorf("hashing %s: %w", p, err)
		}
		etags[p] = fmt.Sprintf(`"%x"`, hasher.Sum(nil))
		return nil
	})
}

func expandCacheControl(etags map[string]string, cacheControl map[string]string) (map[string]string, error) {
	expanded := make(map[string]string)
	for p := range etags {
		for glob, cc := range cacheControl {
			matched, err := path.Match(glob, p)
			if err != nil {
				return nil, fmt.Errorf("matching %s: %w", p, err)
			}
			if matched {
				expanded[p] = cc
				break
			}
		}
	}
	return expanded, nil
}

// ServeHTTP serves the file named by the request path.
func (s *StaticFS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	etag, ok := s.etags[p]
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Etag", etag)
	if cc, ok := s.cacheControl[p]; ok {
		w.Header().Set("Cache-Control", cc)
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	http.ServeFileFS(w, r, s.fsys, p)
}
