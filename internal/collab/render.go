package collab

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mtzanidakis/erevna/internal/errs"
	"github.com/mtzanidakis/erevna/internal/stage"
)

// FileRenderer writes reports to a directory on disk. It supports markdown
// and html natively; pdf is rejected because it needs an external converter.
type FileRenderer struct {
	Dir string
}

func NewRenderer(dir string) stage.Renderer {
	return &FileRenderer{Dir: dir}
}

type section struct {
	Title string
	Body  string
	Items []string
}

func (r *FileRenderer) Render(ctx context.Context, req *stage.RenderRequest) (*stage.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := strings.ToLower(req.Format)
	switch format {
	case "markdown", "html":
	case "pdf":
		return nil, errs.Validationf("pdf output requires an external converter; render markdown or html instead")
	default:
		return nil, errs.Validationf("unsupported format %q", req.Format)
	}

	sections := buildSections(req.Synthesis)
	if len(sections) == 0 {
		return nil, errs.Validationf("synthesis has no content to render")
	}

	title := req.Topic
	if title == "" {
		title = "Research Report"
	}

	var data string
	ext := "md"
	if format == "html" {
		ext = "html"
		data = renderHTML(title, sections, req.IncludeTOC)
	} else {
		data = renderMarkdown(title, sections, req.IncludeTOC)
	}

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, errs.Storage("create reports dir", err)
	}

	filename := fmt.Sprintf("report_%s_%s.%s", slugify(title), time.Now().UTC().Format("20060102_150405"), ext)
	path := filepath.Join(r.Dir, filename)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return nil, errs.Storage("write report", err)
	}

	names := make([]string, 0, len(sections))
	for _, s := range sections {
		names = append(names, s.Title)
	}

	return &stage.Report{
		Filepath: path,
		Filename: filename,
		Format:   format,
		Size:     int64(len(data)),
		Sections: names,
	}, nil
}

// buildSections keeps only populated sections, in a fixed order.
func buildSections(syn *stage.Synthesis) []section {
	var out []section
	add := func(title, body string, items []string) {
		if body == "" && len(items) == 0 {
			return
		}
		out = append(out, section{Title: title, Body: body, Items: items})
	}
	add("Executive Summary", syn.ExecutiveSummary, nil)
	add("Key Findings", "", syn.KeyFindings)
	add("Trends", "", syn.Trends)
	add("Agreements", "", syn.Agreements)
	add("Disagreements", "", syn.Disagreements)
	add("Knowledge Gaps", "", syn.KnowledgeGaps)
	add("Methodology", fmt.Sprintf("Synthesized from %d sources on %s.", syn.SourceCount, syn.SynthesisDate), nil)
	return out
}

func renderMarkdown(title string, sections []section, toc bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if toc {
		b.WriteString("## Contents\n\n")
		for _, s := range sections {
			fmt.Fprintf(&b, "- %s\n", s.Title)
		}
		b.WriteString("\n")
	}
	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n", s.Title)
		if s.Body != "" {
			fmt.Fprintf(&b, "%s\n\n", s.Body)
		}
		for _, item := range s.Items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		if len(s.Items) > 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderHTML(title string, sections []section, toc bool) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	fmt.Fprintf(&b, "<meta charset=\"utf-8\">\n<title>%s</title>\n", html.EscapeString(title))
	b.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;line-height:1.5}</style>\n")
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(title))
	if toc {
		b.WriteString("<nav><ul>\n")
		for _, s := range sections {
			fmt.Fprintf(&b, "<li><a href=\"#%s\">%s</a></li>\n", slugify(s.Title), html.EscapeString(s.Title))
		}
		b.WriteString("</ul></nav>\n")
	}
	for _, s := range sections {
		fmt.Fprintf(&b, "<h2 id=\"%s\">%s</h2>\n", slugify(s.Title), html.EscapeString(s.Title))
		if s.Body != "" {
			fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(s.Body))
		}
		if len(s.Items) > 0 {
			b.WriteString("<ul>\n")
			for _, item := range s.Items {
				fmt.Fprintf(&b, "<li>%s</li>\n", html.EscapeString(item))
			}
			b.WriteString("</ul>\n")
		}
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}
