package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-settings/schema/openapi"
)

func newSchemaCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the OpenAPI document for the configured definitions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			defs, err := loadDefinitions(a.cfg.Definitions.File)
			if err != nil {
				return err
			}
			doc, err := openapi.NewGenerator().Generate(defs)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
}
