// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/sanabi/sanabi/internal/loader"
	"github.com/sanabi/sanabi/pkg/pluginsdk"
)

// NewModsCmd creates the mods subcommand.
func NewModsCmd() *cobra.Command {
	return newModsCmd(nil)
}

func newModsCmd(opener loader.Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "mods",
		Short: "List plugin modules in the mods directory",
		Long: `List every module file directly under the mods directory, whether it
opens, and which plugin symbols it exports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if opener == nil {
				opener = loader.PluginOpener{}
			}
			return listMods(cmd, cfg.ModsDir, opener)
		},
	}
}

func listMods(cmd *cobra.Command, dir string, opener loader.Opener) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "mods directory %s does not exist\n", dir)
			return nil
		}
		return oops.Code("MODS_DIR_UNREADABLE").With("dir", dir).Wrap(err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSTATUS\tSYMBOLS")
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), loader.ModuleExt) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		m, err := opener.Open(path)
		if err != nil {
			fmt.Fprintf(tw, "%s\terror: %v\t-\n", entry.Name(), err)
			continue
		}

		var syms []string
		for _, name := range append(append([]string{}, pluginsdk.EntrySymbols...), pluginsdk.LogForwardSymbol, pluginsdk.RequiresHostSymbol) {
			if _, err := m.Lookup(name); err == nil {
				syms = append(syms, name)
			}
		}
		if len(syms) == 0 {
			syms = []string{"-"}
		}
		fmt.Fprintf(tw, "%s\tok\t%s\n", m.Name(), strings.Join(syms, ","))
	}
	return oops.Wrap(tw.Flush())
}
