package partition

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/prerender/pkg/asset"
)

// ToDOT converts a partition to Graphviz DOT format. Nodes are labeled with
// their destination path when src knows the asset, and with the short ID
// otherwise. External assets are drawn dashed and grey; the entry is bold.
func ToDOT(r *Result, src asset.Source) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	for _, id := range r.Internal {
		attrs := fmt.Sprintf("label=%q", label(src, id))
		if id == r.Entry {
			attrs += ", penwidth=2"
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", id.Short(), attrs)
	}
	for _, id := range r.External {
		attrs := fmt.Sprintf("label=%q, style=\"rounded,filled,dashed\", fillcolor=lightgrey", label(src, id))
		if id == r.Entry {
			attrs += ", penwidth=2"
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", id.Short(), attrs)
	}

	buf.WriteString("\n")
	for _, e := range r.Edges {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From.Short(), e.To.Short())
	}

	buf.WriteString("}\n")
	return buf.String()
}

func label(src asset.Source, id asset.ID) string {
	if src != nil {
		if a, ok := src.Asset(id); ok {
			return "/" + a.Path.Path
		}
	}
	return id.Short()
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root tag so the SVG scales from its origin.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
