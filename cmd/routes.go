package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/iri-facility-api/internal/server"
)

type routesOptions struct {
	format string
	all    bool
}

func newRoutesCmd() *cobra.Command {
	opts := routesOptions{}
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Prints the discovery document for the current configuration",
		Long: `Builds the route table exactly as serve would, without listening or
connecting to any database, and prints the discovery document. Routes of
sub-domains without a configured backend are only listed with --all.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			srv, err := server.Describe(cfg, logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
			if err != nil {
				return err
			}
			return writeDocument(cmd.OutOrStdout(), opts.format, srv.Document(opts.all))
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "json", "output format: json or yaml")
	cmd.Flags().BoolVar(&opts.all, "all", false, "include routes hidden from discovery")
	return cmd
}

func writeDocument(w io.Writer, format string, doc any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q: want json or yaml", format)
	}
}
