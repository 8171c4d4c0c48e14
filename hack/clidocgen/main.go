// Copyright (c) Edgeless Systems GmbH.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Clidocgen generates a Markdown page describing all dextctl commands.
package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/edgelesssys/dextmanager/cli/cmd"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var seeAlsoRegexp = regexp.MustCompile(`(?s)### SEE ALSO\n.+?\n\n`)

func main() {
	cobra.EnableCommandSorting = false
	rootCmd := cmd.NewRootCmd()
	rootCmd.DisableAutoGenTag = true

	page, err := genMarkdown(rootCmd)
	if err != nil {
		panic(err)
	}
	fmt.Print(page)
}

// genMarkdown returns a list of all subcommands of rootCmd followed by their documentation.
func genMarkdown(rootCmd *cobra.Command) (string, error) {
	cmdList := &bytes.Buffer{}
	body := &bytes.Buffer{}
	for _, c := range allSubCommands(rootCmd) {
		fullName, level := determineFullNameAndLevel(c, rootCmd.Name())

		// 2 spaces of indentation per level
		fmt.Fprintf(cmdList, "%*s* [%v](#%v-%v): %v\n", 2*level, "", c.Name(), rootCmd.Name(), fullName, c.Short)
		if err := doc.GenMarkdown(c, body); err != nil {
			return "", err
		}
	}

	// "see also" sections only list parent and child commands
	cleanedBody := seeAlsoRegexp.ReplaceAll(body.Bytes(), nil)

	return fmt.Sprintf("Commands:\n\n%s\n%s", cmdList, cleanedBody), nil
}

func allSubCommands(cmd *cobra.Command) []*cobra.Command {
	var all []*cobra.Command
	for _, c := range cmd.Commands() {
		all = append(all, c)
		all = append(all, allSubCommands(c)...)
	}
	return all
}

func determineFullNameAndLevel(cmd *cobra.Command, rootName string) (string, int) {
	name := cmd.Name()
	level := 0
	for cmd.HasParent() && cmd.Parent().Name() != rootName {
		cmd = cmd.Parent()
		name = cmd.Name() + "-" + name // '-' since the name is used as a Markdown anchor
		level++
	}
	return name, level
}
