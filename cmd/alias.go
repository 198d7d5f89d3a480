package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/census-geo/internal/catalog"
	"github.com/sells-group/census-geo/internal/model"
)

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Translate between variable aliases and Census codes",
}

var aliasToVariableCmd = &cobra.Command{
	Use:   "to-variable ALIASES",
	Short: "Map comma separated aliases to variable codes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.LoadDir(cfg.Catalog.Dir)
		if err != nil {
			return err
		}
		out, err := cat.AliasToVariable(model.SplitList(args[0]))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var aliasToAliasCmd = &cobra.Command{
	Use:   "to-alias VARIABLES",
	Short: "Map comma separated variable codes to aliases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.LoadDir(cfg.Catalog.Dir)
		if err != nil {
			return err
		}
		out, err := cat.VariableToAlias(model.SplitList(args[0]))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var aliasListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the alias dictionary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.LoadDir(cfg.Catalog.Dir)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), cat.Aliases())
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	aliasCmd.AddCommand(aliasToVariableCmd, aliasToAliasCmd, aliasListCmd)
	rootCmd.AddCommand(aliasCmd)
}
