package cli

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/lazypower/atomspace/internal/atomspace"
	"github.com/lazypower/atomspace/internal/store"
)

func (a *app) nodeCmd() *cobra.Command {
	var value string
	cmd := &cobra.Command{
		Use:   "node <type> <name>",
		Short: "Find or create a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSpace(func(as *atomspace.AtomSpace) error {
				var v any
				if value != "" {
					v = value
				}
				n, err := as.AddNode(cmd.Context(), args[0], args[1], v, nil)
				if err != nil {
					return err
				}
				return printJSON(cmd, atomspace.NewView(n, nil))
			})
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "value payload (JSON or plain text)")
	return cmd
}

func (a *app) linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <type> <id>...",
		Short: "Find or create a link over existing atoms",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args)-1)
			for _, raw := range args[1:] {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return errors.Newf("invalid atom id %q", raw)
				}
				ids = append(ids, id)
			}
			return a.withSpace(func(as *atomspace.AtomSpace) error {
				l, err := as.AddLink(cmd.Context(), args[0], ids, nil)
				if err != nil {
					return err
				}
				rendered, err := as.Render(cmd.Context(), l)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s\n", l.ID, rendered)
				return nil
			})
		},
	}
}

func (a *app) tripleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "triple <subject> <predicate> <object>",
		Short: "Record a subject-predicate-object fact",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSpace(func(as *atomspace.AtomSpace) error {
				l, err := as.AddTriple(cmd.Context(), args[0], args[1], args[2])
				if err != nil {
					return err
				}
				rendered, err := as.Render(cmd.Context(), l)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "#%d %s\n", l.ID, rendered)
				return nil
			})
		},
	}
}

func (a *app) triplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "triples <subject>",
		Short: "List the facts recorded about a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSpace(func(as *atomspace.AtomSpace) error {
				facts, err := as.QuerySubject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(facts) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No facts about %s.\n", args[0])
					return nil
				}
				for _, f := range facts {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", f.Subject, f.Predicate, f.Object)
				}
				return nil
			})
		},
	}
}

func (a *app) matchCmd() *cobra.Command {
	var p atomspace.Pattern
	var atomType string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "List atoms matching a pattern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p.AtomType = store.Kind(atomType)
			return a.withSpace(func(as *atomspace.AtomSpace) error {
				matches, err := as.PatternMatch(cmd.Context(), p)
				if err != nil {
					return err
				}
				for i := range matches {
					rendered, err := as.Render(cmd.Context(), &matches[i])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "#%d %s\n", matches[i].ID, rendered)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&atomType, "atom-type", "", "node or link")
	f.StringVar(&p.TypeName, "type-name", "", "exact type name")
	f.StringVar(&p.Name, "name", "", "node name to match")
	f.StringVar((*string)(&p.NameMode), "mode", "", "name match mode: exact, substring, regex")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show atom counts for the owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSpace(func(as *atomspace.AtomSpace) error {
				st, err := as.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, st)
			})
		},
	}
}

func (a *app) shareCmd() *cobra.Command {
	var shareType string
	var public bool
	cmd := &cobra.Command{
		Use:   "share <atom-id> <target-owner>",
		Short: "Share one of the owner's atoms with another owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			atomID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Newf("invalid atom id %q", args[0])
			}
			target, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return errors.Newf("invalid owner id %q", args[1])
			}
			return a.withSpace(func(as *atomspace.AtomSpace) error {
				sh, err := as.ShareAtom(cmd.Context(), atomID, target, store.ShareType(shareType), public)
				if err != nil {
					return err
				}
				return printJSON(cmd, sh)
			})
		},
	}
	cmd.Flags().StringVar(&shareType, "type", "read", "share type: read, write, copy")
	cmd.Flags().BoolVar(&public, "public", false, "also list the atom publicly")
	return cmd
}

func (a *app) agentsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List owners that have atoms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			l := a.limits()
			owners, err := db.ListOwners(cmd.Context(), atomspace.ClampLimit(limit, l.DefaultPage, l.MaxPage))
			if err != nil {
				return err
			}
			if len(owners) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No agents yet.")
				return nil
			}
			for _, o := range owners {
				fmt.Fprintf(cmd.OutOrStdout(), "owner %d: %d atoms\n", o.OwnerID, o.AtomCount)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of owners")
	return cmd
}
