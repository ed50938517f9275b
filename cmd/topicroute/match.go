package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bjaus/topicroute"
)

// routeFile is the YAML form of a route list:
//
//	routes:
//	  - zone/{zoneId}/reading
//	  - sensors/*
type routeFile struct {
	Routes []string `yaml:"routes"`
}

func newMatchCommand() *cobra.Command {
	var (
		routes     []string
		routesPath string
		list       bool
	)

	cmd := &cobra.Command{
		Use:   "match [topic...]",
		Short: "Show which route template each topic resolves to",
		Long: `Build a route table from --route flags and/or a routes file, then print
the winning template and captured parameters for each topic.

With --list, print the table in match order first.`,
		Example: `  topicroute match --route 'a/b' --route 'a/{p}' --route 'a/*' a/b a/c a/b/c
  topicroute match --routes routes.yaml --list`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if routesPath != "" {
				fromFile, err := readRouteFile(routesPath)
				if err != nil {
					return err
				}
				routes = append(routes, fromFile...)
			}
			if len(routes) == 0 {
				return fmt.Errorf("no routes given: use --route or --routes")
			}
			if !list && len(args) == 0 {
				return fmt.Errorf("no topics given")
			}
			return runMatch(cmd.OutOrStdout(), routes, args, list)
		},
	}

	cmd.Flags().StringArrayVar(&routes, "route", nil, "Route template (repeatable)")
	cmd.Flags().StringVar(&routesPath, "routes", "", "YAML file with a routes list")
	cmd.Flags().BoolVar(&list, "list", false, "Print the route table in match order")

	return cmd
}

func readRouteFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes: %w", err)
	}
	var f routeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}
	return f.Routes, nil
}

func buildTable(routes []string) (*topicroute.Table, error) {
	table := topicroute.NewTable()
	for _, route := range routes {
		tmpl, err := topicroute.ParseTemplate(route)
		if err != nil {
			return nil, err
		}
		if err := table.Register(tmpl, &topicroute.Handler{Name: route}); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func runMatch(w io.Writer, routes, topics []string, list bool) error {
	table, err := buildTable(routes)
	if err != nil {
		return err
	}

	if list {
		for i, route := range table.Routes() {
			fmt.Fprintf(w, "%d. %s\n", i+1, route.Template)
		}
	}

	for _, topic := range topics {
		rc := table.Match(topic)
		if !rc.Matched() {
			fmt.Fprintf(w, "%s -> (no route)\n", topic)
			continue
		}
		fmt.Fprintf(w, "%s -> %s%s\n", topic, rc.Template, formatParams(rc.Params))
	}
	return nil
}

func formatParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return " [" + strings.Join(parts, " ") + "]"
}
