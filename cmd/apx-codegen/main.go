package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dd0wney/cluso-apx/pkg/apx"
	"github.com/dd0wney/cluso-apx/pkg/artifact"
	"github.com/dd0wney/cluso-apx/pkg/codegen"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
)

func main() {
	apxPath := flag.String("apx", "", "APX definition file")
	specPath := flag.String("spec", "", "YAML node description (alternative to -apx)")
	outDir := flag.String("out", ".", "Output directory")
	include := flag.String("include", "", "Comma separated headers included by the generated header")
	publish := flag.String("publish", "", "Also publish the generated files to a directory or s3://bucket/prefix")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	logger := logging.NewLogger("text", os.Stderr, logging.ParseLevel(*logLevel))
	if (*apxPath == "") == (*specPath == "") {
		fmt.Fprintln(os.Stderr, "apx-codegen: exactly one of -apx or -spec is required")
		flag.Usage()
		os.Exit(2)
	}

	node, includes, err := loadNode(*apxPath, *specPath)
	if err != nil {
		logger.Error("failed to load node", logging.Error(err))
		os.Exit(1)
	}
	if *include != "" {
		includes = strings.Split(*include, ",")
	}

	registry := metrics.NewRegistry()
	opts := []codegen.Option{codegen.WithLogger(logger), codegen.WithMetrics(registry)}
	if len(includes) > 0 {
		opts = append(opts, codegen.WithIncludes(includes...))
	}
	res, err := codegen.NewNodeGenerator(opts...).Generate(*outDir, node)
	if err != nil {
		logger.Error("code generation failed", logging.NodeName(node.Name), logging.Error(err))
		os.Exit(1)
	}
	for _, path := range res.Written {
		fmt.Println(path)
	}

	if *publish == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	pub, err := artifact.Open(ctx, *publish)
	if err != nil {
		logger.Error("failed to open publish target", logging.String("target", *publish), logging.Error(err))
		os.Exit(1)
	}
	if err := artifact.PublishFiles(ctx, pub, registry, res.HeaderPath, res.SourcePath); err != nil {
		logger.Error("publish failed", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("published generated code",
		logging.NodeName(node.Name),
		logging.String("header", pub.Location(filepath.Base(res.HeaderPath))),
		logging.String("source", pub.Location(filepath.Base(res.SourcePath))))
}

func loadNode(apxPath, specPath string) (*apx.Node, []string, error) {
	if apxPath != "" {
		node, err := apx.ParseFile(apxPath)
		return node, nil, err
	}
	spec, err := codegen.LoadNodeSpec(specPath)
	if err != nil {
		return nil, nil, err
	}
	node, err := spec.Node()
	return node, spec.Includes, err
}
