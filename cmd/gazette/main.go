package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/gazette/pkg/gazette"
	"github.com/cognicore/gazette/pkg/gazette/builtin"
	"github.com/cognicore/gazette/pkg/gazette/config"
	"github.com/cognicore/gazette/pkg/gazette/dataset"
	"github.com/cognicore/gazette/pkg/gazette/entity"
	"github.com/cognicore/gazette/pkg/gazette/gazetteer"
	"github.com/cognicore/gazette/pkg/gazette/internalerr"
)

const usageText = `usage:
  gazette fit -dataset <file> -out <dir> [-settings <file>] [-usage <usage>] [-resources <dir>] [-ontology <file>]
  gazette parse -engine <dir> [-scope a,b] [-settings <file>] [text...]
  gazette resources install <entity> <language> -values <file> [-resources <dir>]
  gazette resources find <entity> <language> [-resources <dir>]`

var errUsage = errors.New(usageText)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "fit":
		return runFit(ctx, args[1:])
	case "parse":
		return runParse(ctx, args[1:], stdin, stdout)
	case "resources":
		if len(args) < 2 {
			return errUsage
		}
		switch args[1] {
		case "install":
			return runInstall(ctx, args[2:], stdout)
		case "find":
			return runFind(args[2:], stdout)
		}
	}
	return errUsage
}

func runFit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fit", flag.ContinueOnError)
	var (
		datasetPath  = fs.String("dataset", "", "Dataset file, YAML or JSON (required)")
		out          = fs.String("out", "", "Output engine directory (required)")
		settingsPath = fs.String("settings", "", "Settings file")
		usage        = fs.String("usage", "", "Custom parser usage: with_stems, without_stems, with_and_without_stems")
		resources    = fs.String("resources", "", "Builtin resources directory")
		ontologyPath = fs.String("ontology", "", "Builtin entity catalogue")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *datasetPath == "" || *out == "" {
		return fmt.Errorf("--dataset and --out required: %w", errUsage)
	}

	loader := config.Loader{
		SettingsPath:  *settingsPath,
		DatasetPath:   *datasetPath,
		OntologyPath:  *ontologyPath,
		ResourcesPath: *resources,
		Usage:         *usage,
	}
	comp, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configs: %w", err)
	}

	engine := gazette.New(comp.EngineOptions(nil))
	if err := engine.Fit(ctx, comp.Dataset); err != nil {
		return err
	}
	if err := engine.Persist(ctx, *out); err != nil {
		return fmt.Errorf("persist engine: %w", err)
	}
	log.Printf("Fitted %s engine on %d entities into %s", engine.Language(), len(comp.Dataset.Entities), *out)
	return nil
}

func runParse(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	var (
		engineDir    = fs.String("engine", "", "Engine directory written by fit (required)")
		scopeFlag    = fs.String("scope", "", "Comma-separated entities to keep")
		settingsPath = fs.String("settings", "", "Settings file")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *engineDir == "" {
		return fmt.Errorf("--engine required: %w", errUsage)
	}

	comp, err := (&config.Loader{SettingsPath: *settingsPath}).Load()
	if err != nil {
		return fmt.Errorf("load configs: %w", err)
	}
	engine, err := gazette.FromPath(ctx, *engineDir, comp.EngineOptions(nil))
	if err != nil {
		return fmt.Errorf("load engine: %w", err)
	}

	var scope []string
	if *scopeFlag != "" {
		scope = strings.Split(*scopeFlag, ",")
	}

	enc := json.NewEncoder(stdout)
	parse := func(text string) error {
		occs, err := engine.ParseAll(text, scope, true)
		if err != nil {
			return err
		}
		return enc.Encode(struct {
			Input    string              `json:"input"`
			Entities []entity.Occurrence `json:"entities"`
		}{text, occs})
	}

	if fs.NArg() > 0 {
		return parse(strings.Join(fs.Args(), " "))
	}
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if err := parse(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// runInstall builds a resource bundle from a values file shaped like a
// dataset entity (data, use_synonyms, parser_threshold or utterances).
func runInstall(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}
	name, language := args[0], args[1]

	fs := flag.NewFlagSet("resources install", flag.ContinueOnError)
	var (
		valuesPath = fs.String("values", "", "Entity values file (required)")
		resources  = fs.String("resources", os.Getenv(builtin.ResourcesEnv), "Builtin resources directory")
	)
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}
	if *valuesPath == "" || *resources == "" {
		return fmt.Errorf("--values and --resources required: %w", errUsage)
	}

	data, err := os.ReadFile(*valuesPath)
	if err != nil {
		return err
	}
	var ent dataset.Entity
	if err := yaml.Unmarshal(data, &ent); err != nil {
		return fmt.Errorf("%w: decode values: %v", internalerr.ErrInvalidInput, err)
	}
	ds := dataset.Dataset{Language: language, Entities: map[string]dataset.Entity{name: ent}}
	ds.Format()
	ent = ds.Entities[name]

	idx, err := gazetteer.Build(map[string]gazetteer.EntityConfig{
		name: {Threshold: ent.Threshold(), Utterances: ent.Utterances},
	})
	if err != nil {
		return err
	}
	dir, err := builtin.InstallResource(ctx, *resources, language, name, idx)
	if err != nil {
		return err
	}
	log.Printf("Installed %d values of %s (%s) into %s", idx.Size(), name, language, dir)
	fmt.Fprintln(stdout, dir)
	return nil
}

func runFind(args []string, stdout io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}
	name, language := args[0], args[1]

	fs := flag.NewFlagSet("resources find", flag.ContinueOnError)
	resources := fs.String("resources", os.Getenv(builtin.ResourcesEnv), "Builtin resources directory")
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}

	path, err := builtin.Finder{Root: *resources}.FindGazetteerEntityDataPath(language, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, path)
	return nil
}
