package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/lazypower/atomspace/internal/atomspace"
)

func (a *app) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the owner's atoms as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSpace(func(as *atomspace.AtomSpace) error {
				exp, err := as.Export(cmd.Context())
				if err != nil {
					return err
				}

				w := cmd.OutOrStdout()
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return errors.Wrap(err, "create export file")
					}
					defer f.Close()
					w = f
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				if err := enc.Encode(exp); err != nil {
					return errors.Wrap(err, "write export")
				}
				if out != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "exported %d atoms to %s\n", exp.AtomCount, out)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import an export file into the owner's atomspace",
		Long:  "Import atoms from an export file. Use - to read from stdin. Ids are remapped; existing atoms are reused.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			var err error
			if args[0] == "-" {
				payload, err = io.ReadAll(cmd.InOrStdin())
			} else {
				payload, err = os.ReadFile(args[0])
			}
			if err != nil {
				return errors.Wrap(err, "read import file")
			}

			return a.withSpace(func(as *atomspace.AtomSpace) error {
				n, err := as.Import(cmd.Context(), payload)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d atoms\n", n)
				return nil
			})
		},
	}
}
