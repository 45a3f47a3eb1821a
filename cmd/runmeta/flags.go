package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/deixis/runmeta/internal/config"
	"github.com/deixis/runmeta/internal/metadata"
)

// pairFlag implements flag.Value to collect repeatable name=value flags.
type pairFlag []metadata.Parameter

func (p *pairFlag) String() string {
	if p == nil {
		return ""
	}
	parts := make([]string, 0, len(*p))
	for _, kv := range *p {
		parts = append(parts, kv.Name+"="+kv.Value)
	}
	return strings.Join(parts, ",")
}

func (p *pairFlag) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("want name=value, got %q", v)
	}
	*p = append(*p, metadata.Parameter{Name: name, Value: value})
	return nil
}

func (p pairFlag) parameters() []metadata.Parameter {
	return append([]metadata.Parameter(nil), p...)
}

func (p pairFlag) outputs() []metadata.Output {
	out := make([]metadata.Output, 0, len(p))
	for _, kv := range p {
		out = append(out, metadata.Output{Name: kv.Name, Value: kv.Value})
	}
	return out
}

// identityFlags are shared by commands that create a writer.
type identityFlags struct {
	tool        *string
	toolVersion *string
	operator    *string
	gisVersion  *string
}

func addIdentityFlags(fs *flag.FlagSet) identityFlags {
	return identityFlags{
		tool:        fs.String("tool", "", "tool name (default from config)"),
		toolVersion: fs.String("tool-version", "", "tool version (default from config)"),
		operator:    fs.String("operator", "", "operator to record (default: current user)"),
		gisVersion:  fs.String("gis-version", "", "GIS or environment version"),
	}
}

// apply overrides cfg with any flags that were set.
func (f identityFlags) apply(cfg *config.Config) {
	if *f.tool != "" {
		cfg.Tool.Name = *f.tool
	}
	if *f.toolVersion != "" {
		cfg.Tool.Version = *f.toolVersion
	}
	if *f.operator != "" {
		cfg.Operator = *f.operator
	}
	if *f.gisVersion != "" {
		cfg.GISVersion = *f.gisVersion
	}
}

// documentFlags select where and how the document is written.
type documentFlags struct {
	output *string
	layout *string
	indent *bool
}

func addDocumentFlags(fs *flag.FlagSet) documentFlags {
	return documentFlags{
		output: fs.String("o", "", "metadata document path (default from config, else metadata.xml)"),
		layout: fs.String("layout", "", "document layout: legacy or symmetric"),
		indent: fs.Bool("indent", false, "indent the document"),
	}
}

func (f documentFlags) apply(cfg *config.Config) error {
	if *f.output != "" {
		cfg.Output = *f.output
	}
	if *f.layout != "" {
		if _, err := metadata.ParseLayout(*f.layout); err != nil {
			return err
		}
		cfg.RawLayout = *f.layout
	}
	if *f.indent {
		cfg.Indent = true
	}
	return nil
}
