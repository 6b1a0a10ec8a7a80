package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
	"github.com/vango-dev/bigpipe/pkg/registry"
)

func routesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the discovered pagelets",
		Long: `Run discovery and print every top-level pagelet with its path,
methods, mode and children, followed by the status pagelets in use.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, newLogger(io.Discard, cfg.Log))
			if err != nil {
				return err
			}
			printRoutes(os.Stdout, a.pipe.Snapshot())
			return nil
		},
	}
}

func printRoutes(w io.Writer, snap *registry.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPATH\tMETHODS\tMODE\tCHILDREN")
	for _, d := range snap.Definitions() {
		path := d.Path()
		if !d.Routable() {
			path = "-"
		}
		methods := "*"
		if m := d.Methods(); len(m) > 0 {
			methods = strings.Join(m, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name(), path, methods, d.Mode(), childNames(d))
	}
	tw.Flush()

	fmt.Fprintf(w, "\n404: %s\n500: %s\nbootstrap: %s\n", snap.NotFound.Name(), snap.Error.Name(), snap.Bootstrap.Name())
}

func childNames(d *pagelet.Definition) string {
	var names []string
	for _, c := range d.Children() {
		names = append(names, c.Name())
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
