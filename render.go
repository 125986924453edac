package main

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

//go:embed templates/*.html.tmpl
var builtin_templates embed.FS

var template_funcs = template.FuncMap{
	"title":      title_case,
	"join":       strings.Join,
	"humanbytes": human_bytes,
	"modalfile":  modal_filename,
}

// "jquery" => "modjquery.html"
func modal_filename(name string) string {
	return "mod" + name + ".html"
}

// loads the template at `path`, or the built-in template `builtin_name` when `path` is empty.
func load_template(path string, builtin_name string) (*template.Template, error) {
	var text []byte
	var err error
	if path == "" {
		text, err = builtin_templates.ReadFile("templates/" + builtin_name)
	} else {
		text, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	name := builtin_name
	if path != "" {
		name = filepath.Base(path)
	}
	tmpl, err := template.New(name).Funcs(template_funcs).Parse(string(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", name, err)
	}
	return tmpl, nil
}

func render_to_file(tmpl *template.Template, data any, path string) error {
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, data)
	if err != nil {
		return fmt.Errorf("failed to render '%s': %w", path, err)
	}
	err = os.WriteFile(path, buf.Bytes(), 0o644)
	if err != nil {
		return fmt.Errorf("failed to write '%s': %w", path, err)
	}
	return nil
}

// writes the index and a modal for each library in `library_list` to `output_dir`.
func render_catalogue(library_list []Library, output_dir string) error {
	index_tmpl, err := load_template(STATE.Config.IndexTemplate, "index.html.tmpl")
	if err != nil {
		return err
	}
	modal_tmpl, err := load_template(STATE.Config.ModalTemplate, "modal.html.tmpl")
	if err != nil {
		return err
	}

	err = os.MkdirAll(output_dir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	index_path := filepath.Join(output_dir, "index.html")
	err = render_to_file(index_tmpl, map[string]any{"Libraries": library_list}, index_path)
	if err != nil {
		return err
	}
	slog.Info("wrote index", "path", index_path, "libraries", len(library_list))

	for _, lib := range library_list {
		ensure(valid_library_name(lib.Name), "library with an unsafe name reached rendering: "+lib.Name)
		modal_path := filepath.Join(output_dir, modal_filename(lib.Name))
		err = render_to_file(modal_tmpl, map[string]any{"Lib": lib}, modal_path)
		if err != nil {
			return err
		}
		slog.Debug("wrote modal", "path", modal_path)
	}
	return nil
}
