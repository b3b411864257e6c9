// Renders pages through their layout templates and writes the output files
package renderer

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/tdewolff/minify/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ianchak/stati-sub002/builder/deps"
	"github.com/ianchak/stati-sub002/builder/models"
	"github.com/ianchak/stati-sub002/builder/utils"
)

// MaxTemplateDepth bounds layout and include nesting.
const MaxTemplateDepth = 32

// TemplateResolver finds layout and referenced templates.
// *deps.Tracker implements it.
type TemplateResolver interface {
	ResolveLayout(page *models.Page) (string, bool)
	Resolve(name, fromDir string) (string, bool)
}

type Options struct {
	OutDir      string
	BaseURL     string
	Compress    bool
	Precompress bool
}

type Renderer struct {
	srcFs    afero.Fs
	outFs    afero.Fs
	resolver TemplateResolver
	opts     Options
	md       goldmark.Markdown
	minifier *minify.M
	logger   *slog.Logger
}

// PageData is the template data for one page.
type PageData struct {
	Title       string
	Content     template.HTML
	URL         string
	BaseURL     string
	Tags        []string
	PublishedAt *time.Time
	Params      map[string]interface{}
	Partials    map[string]template.HTML
}

func New(srcFs, outFs afero.Fs, resolver TemplateResolver, opts Options, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		srcFs:    srcFs,
		outFs:    outFs,
		resolver: resolver,
		opts:     opts,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		logger: logger,
	}
	if opts.Compress {
		r.minifier = utils.NewMinifier()
	}
	return r
}

// OutputFile returns where page is written.
func (r *Renderer) OutputFile(page *models.Page) string {
	return filepath.Join(r.opts.OutDir, filepath.FromSlash(strings.TrimPrefix(page.OutputPath, "/")))
}

// OutputExists reports whether the rendered file for page is present.
func (r *Renderer) OutputExists(page *models.Page) bool {
	ok, err := afero.Exists(r.outFs, r.OutputFile(page))
	return err == nil && ok
}

// Render renders page and writes it, plus a .gz sibling when precompressing.
func (r *Renderer) Render(page *models.Page) error {
	out, err := r.RenderHTML(page)
	if err != nil {
		return err
	}

	dest := r.OutputFile(page)
	if err := utils.WriteFileVFS(r.outFs, dest, out); err != nil {
		return err
	}

	if r.opts.Precompress {
		gz, err := gzipBytes(out)
		if err != nil {
			return fmt.Errorf("failed to compress %s: %w", page.OutputPath, err)
		}
		if err := utils.WriteFileVFS(r.outFs, dest+".gz", gz); err != nil {
			return err
		}
	}
	return nil
}

// RenderHTML converts the page markdown and applies its layout chain.
func (r *Renderer) RenderHTML(page *models.Page) ([]byte, error) {
	buf := utils.SharedBufferPool.Get()
	defer utils.SharedBufferPool.Put(buf)

	if err := r.md.Convert([]byte(page.Content), buf); err != nil {
		return nil, fmt.Errorf("failed to convert markdown for %s: %w", page.RelPath, err)
	}

	data := PageData{
		Title:       page.Title(),
		Content:     template.HTML(buf.String()),
		URL:         r.opts.BaseURL + page.OutputPath,
		BaseURL:     r.opts.BaseURL,
		Tags:        page.Tags(),
		PublishedAt: page.PublishedAt(),
		Params:      page.FrontMatter,
	}

	var out string
	layout, ok := r.resolver.ResolveLayout(page)
	if ok {
		var err error
		out, err = r.execute(layout, data, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", page.RelPath, err)
		}
	} else {
		r.logger.Debug("no layout found, writing bare content", "page", page.RelPath)
		out = string(data.Content)
	}

	if r.minifier != nil {
		minified, err := r.minifier.String("text/html", out)
		if err != nil {
			r.logger.Warn("minification failed, writing unminified output", "page", page.RelPath, "error", err)
		} else {
			out = minified
		}
	}
	return []byte(out), nil
}

// execute renders one template file. A {{ layout "x" }} action makes the
// result the .Content of the parent layout, which is rendered next.
func (r *Renderer) execute(file string, data PageData, depth int) (string, error) {
	if depth > MaxTemplateDepth {
		return "", fmt.Errorf("template nesting deeper than %d levels at %s", MaxTemplateDepth, file)
	}

	src, err := afero.ReadFile(r.srcFs, file)
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", file, err)
	}
	dir := filepath.Dir(file)

	var parent string
	embed := func(name string) (template.HTML, error) {
		target, ok := r.resolver.Resolve(normalizeName(name), dir)
		if !ok {
			return "", fmt.Errorf("template %q referenced from %s not found", name, file)
		}
		s, err := r.execute(target, data, depth+1)
		return template.HTML(s), err
	}

	funcs := template.FuncMap{
		"include": embed,
		"partial": func(name string, _ ...interface{}) (template.HTML, error) {
			return embed(name)
		},
		"layout":  func(name string) string { parent = name; return "" },
		"extends": func(name string) string { parent = name; return "" },
		"lower":   strings.ToLower,
		"upper":   strings.ToUpper,
		"date": func(layout string, t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format(layout)
		},
	}

	tmpl, err := template.New(filepath.Base(file)).Funcs(funcs).Parse(string(src))
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", file, err)
	}
	sources, err := r.defineNamed(tmpl, string(src), dir)
	if err != nil {
		return "", err
	}

	local := data
	local.Partials = make(map[string]template.HTML)
	for _, s := range sources {
		for _, name := range deps.PartialFields(s) {
			if _, done := local.Partials[name]; done {
				continue
			}
			frag, err := embed(name)
			if err != nil {
				return "", err
			}
			local.Partials[name] = frag
		}
	}

	buf := utils.SharedBufferPool.Get()
	defer utils.SharedBufferPool.Put(buf)
	if err := tmpl.Execute(buf, local); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", file, err)
	}
	out := buf.String()

	if parent == "" {
		return out, nil
	}
	target, ok := r.resolver.Resolve(normalizeName(parent), dir)
	if !ok {
		return "", fmt.Errorf("layout %q referenced from %s not found", parent, file)
	}
	wrapped := data
	wrapped.Content = template.HTML(out)
	return r.execute(target, wrapped, depth+1)
}

// defineNamed adds every file named by {{ template "x.html" }} to tmpl,
// following those files' own template actions. It returns the sources of
// all templates in the set.
func (r *Renderer) defineNamed(tmpl *template.Template, src, dir string) ([]string, error) {
	sources := []string{src}
	for i := 0; i < len(sources) && i <= MaxTemplateDepth; i++ {
		for _, ref := range deps.ParseReferences(sources[i]) {
			if ref.Kind != deps.RefInclude || tmpl.Lookup(ref.Name) != nil {
				continue
			}
			target, ok := r.resolver.Resolve(ref.Name, dir)
			if !ok {
				continue
			}
			body, err := afero.ReadFile(r.srcFs, target)
			if err != nil {
				return nil, fmt.Errorf("failed to read template %s: %w", target, err)
			}
			if _, err := tmpl.New(ref.Name).Parse(string(body)); err != nil {
				return nil, fmt.Errorf("failed to parse template %s: %w", target, err)
			}
			sources = append(sources, string(body))
		}
	}
	return sources, nil
}

// Remove deletes the output of a page that no longer exists.
func (r *Renderer) Remove(outputPath string) error {
	dest := filepath.Join(r.opts.OutDir, filepath.FromSlash(strings.TrimPrefix(outputPath, "/")))
	for _, p := range []string{dest, dest + ".gz"} {
		if err := r.outFs.Remove(p); err != nil {
			if ok, _ := afero.Exists(r.outFs, p); ok {
				return fmt.Errorf("failed to remove %s: %w", p, err)
			}
		}
	}
	return nil
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if path.Ext(name) == "" {
		name += ".html"
	}
	return name
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
