// Package content loads markdown sources into pages.
package content

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/ianchak/stati-sub002/builder/models"
	"github.com/ianchak/stati-sub002/builder/utils"
)

const (
	SourceExt = ".md"
	OutputExt = ".html"
)

var frontMatterDelim = []byte("---")

type Loader struct {
	fs            afero.Fs
	srcDir        string
	includeDrafts bool
	md            goldmark.Markdown
	logger        *slog.Logger
}

func NewLoader(fs afero.Fs, srcDir string, includeDrafts bool, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		fs:            fs,
		srcDir:        filepath.Clean(srcDir),
		includeDrafts: includeDrafts,
		md:            goldmark.New(goldmark.WithExtensions(meta.Meta)),
		logger:        logger,
	}
}

// Load walks the source directory and returns every publishable page,
// ordered by relative path. Directories starting with "_" or "." hold
// partials and tooling and are skipped.
func (l *Loader) Load() ([]*models.Page, error) {
	var pages []*models.Page
	drafts := 0

	err := afero.Walk(l.fs, l.srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if p != l.srcDir && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != SourceExt {
			return nil
		}

		page, err := l.LoadPage(p)
		if err != nil {
			return err
		}
		if page.Draft() && !l.includeDrafts {
			drafts++
			l.logger.Debug("skipping draft", "page", page.RelPath)
			return nil
		}
		pages = append(pages, page)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load content from %s: %w", l.srcDir, err)
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].RelPath < pages[j].RelPath })
	if drafts > 0 {
		l.logger.Info("drafts skipped", "count", drafts)
	}
	return pages, nil
}

// LoadPage reads one source file.
func (l *Loader) LoadPage(p string) (*models.Page, error) {
	rel, err := utils.SafeRel(l.srcDir, p)
	if err != nil {
		return nil, err
	}

	source, err := afero.ReadFile(l.fs, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	fm, body, err := l.ParseFrontMatter(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse front matter in %s: %w", rel, err)
	}

	return &models.Page{
		SourcePath:  p,
		RelPath:     rel,
		OutputPath:  OutputPath(rel),
		Content:     body,
		FrontMatter: fm,
	}, nil
}

// ParseFrontMatter splits source into its YAML front matter and body. A
// source without a leading "---" block has empty front matter.
func (l *Loader) ParseFrontMatter(source []byte) (map[string]interface{}, string, error) {
	block, body, ok := splitFrontMatter(source)
	if !ok {
		return map[string]interface{}{}, string(source), nil
	}

	ctx := parser.NewContext()
	l.md.Parser().Parse(text.NewReader(block), parser.WithContext(ctx))
	fm, err := meta.TryGet(ctx)
	if err != nil {
		return nil, "", err
	}
	if fm == nil {
		fm = map[string]interface{}{}
	}
	return fm, body, nil
}

// splitFrontMatter returns the delimited block (delimiters included) and
// the remaining body.
func splitFrontMatter(source []byte) ([]byte, string, bool) {
	source = bytes.TrimPrefix(source, []byte("\ufeff"))
	first, rest, found := bytes.Cut(source, []byte("\n"))
	if !found || !bytes.Equal(bytes.TrimRight(first, " \t\r"), frontMatterDelim) {
		return nil, "", false
	}

	offset := len(first) + 1
	for len(rest) > 0 {
		line, next, _ := bytes.Cut(rest, []byte("\n"))
		end := offset + len(line)
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), frontMatterDelim) {
			block := append(append([]byte{}, source[:end]...), '\n')
			body := ""
			if end < len(source) {
				body = string(source[end+1:])
			}
			return block, body, true
		}
		offset = end + 1
		rest = next
	}
	return nil, "", false
}

// OutputPath maps a slash-separated source path to its site output path:
// blog/post.md becomes /blog/post.html.
func OutputPath(rel string) string {
	rel = utils.NormalizePath(rel)
	return "/" + strings.TrimSuffix(rel, path.Ext(rel)) + OutputExt
}
