package main

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// NewInitCommand creates the init subcommand.
func NewInitCommand() *cobra.Command {
	var templateName, outputPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a verification config from a template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if templateName == "" {
				return listTemplates(cmd.OutOrStdout())
			}
			return scaffoldFromTemplate(templateName, outputPath, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "template name")
	cmd.Flags().StringVar(&outputPath, "output", "canarygate.yaml", "where to write the config")
	return cmd
}

// listTemplates shows available templates.
func listTemplates(out io.Writer) error {
	fmt.Fprintln(out, "Usage: canarygate init --template=<name> [--output=<path>]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Available templates:")

	names, err := findTemplates()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintf(out, "  - %s\n", n)
	}
	return nil
}

// findTemplates returns the embedded template names.
func findTemplates() ([]string, error) {
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	return names, nil
}

// scaffoldFromTemplate writes a template to outputPath.
func scaffoldFromTemplate(name, outputPath string, out io.Writer) error {
	data, err := templateFS.ReadFile("templates/" + name + ".yaml")
	if err != nil {
		names, _ := findTemplates()
		return fmt.Errorf("template %q not found (available: %s)", name, strings.Join(names, ", "))
	}

	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("file %q already exists (use --output to specify a different path)", outputPath)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(out, "Created %s from template %q\n", outputPath, name)
	fmt.Fprintln(out, "Edit the endpoint and thresholds, then run:")
	fmt.Fprintf(out, "  canarygate validate %s\n", outputPath)
	fmt.Fprintf(out, "  canarygate verify --config-file %s\n", outputPath)
	return nil
}
