package template

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
)

var (
	exts = []string{".html", ".tmpl", ".tpl"}
)

// sharedDir holds layouts and partials available to every page.
const sharedDir = "shared"

// TemplStore holds one template set per page. Each set contains the page
// itself and every template under the shared directory.
type TemplStore struct {
	root      *template.Template
	templates map[string]*template.Template
}

// NewTemplStore parses the templates of fsys. Pages are keyed by their path
// without extension, e.g. "login" for login.html.
func NewTemplStore(fsys fs.FS, funcs template.FuncMap) (*TemplStore, error) {

	rootTempl := template.New("root").Funcs(funcs)

	sourceRootFn := func(fsys fs.FS, p string, key string) error {
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		if _, err := rootTempl.New(key).Parse(string(content)); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}

	if _, err := fs.Stat(fsys, sharedDir); err == nil {
		if err := sourceTemplates(fsys, sharedDir, exts, sourceRootFn); err != nil {
			return nil, err
		}
	}

	templates := make(map[string]*template.Template)

	sourceTemplsFn := func(fsys fs.FS, p string, key string) error {
		if strings.HasPrefix(p, sharedDir+"/") {
			return nil
		}
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		templ, err := rootTempl.Clone()
		if err != nil {
			return err
		}

		templates[key], err = templ.New(key).Parse(string(content))
		if err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}

	if err := sourceTemplates(fsys, ".", exts, sourceTemplsFn); err != nil {
		return nil, err
	}

	return &TemplStore{root: rootTempl, templates: templates}, nil
}

// Render executes the page template into w. The page is rendered into a
// buffer first so that a failing template writes nothing.
func (s *TemplStore) Render(w io.Writer, template string, data interface{}) error {
	templ, ok := s.templates[template]
	if !ok {
		return fmt.Errorf("template %s not found", template)
	}
	var buf bytes.Buffer
	if err := templ.Execute(&buf, data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func sourceTemplates(fsys fs.FS, base string, exts []string, fn func(fsys fs.FS, path string, key string) error) error {

	return fs.WalkDir(fsys, base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		ext := path.Ext(d.Name())

		if !slices.Contains(exts, ext) {
			return nil
		}

		key := strings.TrimSuffix(p, ext)

		return fn(fsys, p, key)

	})
}
