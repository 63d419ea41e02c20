package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	cloudstorage "cloud.google.com/go/storage"
	"github.com/urfave/cli/v2"

	"github.com/wantinglittle/patches/internal/catalog"
	pfirestore "github.com/wantinglittle/patches/internal/platform/firestore"
	platformstorage "github.com/wantinglittle/patches/internal/platform/storage"
	"github.com/wantinglittle/patches/internal/pricing"
)

// Version is overridden at build time.
var Version = "dev"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code := 1
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			code = exit.ExitCode()
		}
		os.Exit(code)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "catalogctl",
		Usage:   "Validate, inspect and quote the storefront package catalog",
		Version: Version,
		Writer:  out,
		// main decides the exit code.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "Catalog source: embedded, a yaml/toml/json file, gs://bucket/object or firestore://collection",
				Value:   "embedded",
				EnvVars: []string{"STOREFRONT_CATALOG_SOURCE"},
			},
			&cli.StringFlag{
				Name:    "project",
				Usage:   "Google Cloud project for firestore:// sources",
				EnvVars: []string{"STOREFRONT_GCP_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "Load the catalog and report every definition problem",
				Action: validateCommand,
			},
			{
				Name:   "list",
				Usage:  "List packages with their option groups and price range",
				Action: listCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
				},
			},
			{
				Name:      "quote",
				Usage:     "Price a package with the given options",
				ArgsUsage: " ",
				Action:    quoteCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "package", Aliases: []string{"p"}, Usage: "Package id", Required: true},
					&cli.StringSliceFlag{Name: "option", Aliases: []string{"o"}, Usage: "Selected option as group=key (repeatable)"},
					&cli.BoolFlag{Name: "require", Usage: "Also enforce the package's required option groups"},
				},
			},
			{
				Name:   "export",
				Usage:  "Write the loaded catalog in another format",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "yaml, toml or json", Value: "yaml"},
				},
			},
		},
	}
}

func validateCommand(c *cli.Context) error {
	cat, err := loadCatalog(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("catalog invalid: %v", err), 1)
	}
	fmt.Fprintf(c.App.Writer, "catalog %s ok: %d packages\n", cat.Version(), cat.Len())
	return nil
}

type packageSummary struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Base     int64    `json:"basePrice"`
	Low      int64    `json:"lowestTotal"`
	High     int64    `json:"highestTotal"`
	Groups   []string `json:"optionGroups"`
	Required []string `json:"requiredGroups,omitempty"`
}

func listCommand(c *cli.Context) error {
	cat, err := loadCatalog(c)
	if err != nil {
		return err
	}

	summaries := make([]packageSummary, 0, cat.Len())
	for _, id := range cat.IDs() {
		def, _ := cat.Lookup(id)
		low, high := def.PriceRange()
		summaries = append(summaries, packageSummary{
			ID:       def.ID,
			Name:     def.DisplayName,
			Base:     def.BasePrice,
			Low:      low,
			High:     high,
			Groups:   def.GroupNames(),
			Required: def.RequiredGroups,
		})
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBASE\tRANGE\tGROUPS")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t$%s\t$%s-$%s\t%s\n",
			s.ID, s.Name,
			pricing.FormatDollars(s.Base),
			pricing.FormatDollars(s.Low), pricing.FormatDollars(s.High),
			strings.Join(s.Groups, ","),
		)
	}
	return tw.Flush()
}

func quoteCommand(c *cli.Context) error {
	cat, err := loadCatalog(c)
	if err != nil {
		return err
	}
	selections, err := parseOptions(c.StringSlice("option"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	validator := pricing.NewValidator(cat)
	packageID := strings.TrimSpace(c.String("package"))
	var result pricing.Result
	if c.Bool("require") {
		result = validator.ValidateOrder(packageID, selections)
	} else {
		result = validator.Validate(packageID, selections)
	}
	if !result.Valid {
		return cli.Exit(fmt.Sprintf("invalid: %v", result.Err()), 1)
	}

	fmt.Fprintf(c.App.Writer, "%s: $%s (%d cents)\n", packageID, pricing.FormatDollars(result.TotalPrice), result.TotalPrice)
	return nil
}

func exportCommand(c *cli.Context) error {
	format, err := catalog.ParseFormat(c.String("format"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	cat, err := loadCatalog(c)
	if err != nil {
		return err
	}
	data, err := catalog.Encode(cat, format)
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func parseOptions(raw []string) (map[string]string, error) {
	selections := make(map[string]string, len(raw))
	for _, entry := range raw {
		group, key, ok := strings.Cut(entry, "=")
		group, key = strings.TrimSpace(group), strings.TrimSpace(key)
		if !ok || group == "" || key == "" {
			return nil, fmt.Errorf("option %q must be group=key", entry)
		}
		if _, dup := selections[group]; dup {
			return nil, fmt.Errorf("option group %q given twice", group)
		}
		selections[group] = key
	}
	return selections, nil
}

func loadCatalog(c *cli.Context) (*catalog.Catalog, error) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	source := strings.TrimSpace(c.String("source"))

	var sources catalog.Sources
	switch {
	case strings.HasPrefix(source, "gs://"):
		client, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		defer client.Close()
		reader, err := platformstorage.NewReader(client)
		if err != nil {
			return nil, err
		}
		sources.Objects = reader
	case strings.HasPrefix(source, "firestore://"):
		project := strings.TrimSpace(c.String("project"))
		if project == "" {
			return nil, cli.Exit("--project is required for firestore:// sources", 2)
		}
		provider := pfirestore.NewProvider(project)
		defer provider.Close()
		sources.Documents = catalog.NewFirestoreSource(provider)
	}

	return catalog.Load(ctx, source, sources)
}
