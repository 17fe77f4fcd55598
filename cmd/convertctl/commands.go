package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"itemconverter.ai/internal/convert/exec"
	"itemconverter.ai/internal/convert/graph"
	"itemconverter.ai/internal/convert/item"
	"itemconverter.ai/internal/convert/paths"
	"itemconverter.ai/internal/convert/rules"
	persistlog "itemconverter.ai/internal/persistence/log"
	"itemconverter.ai/internal/sim/catalogs"
	"itemconverter.ai/internal/sim/session"
	"itemconverter.ai/internal/sim/tuning"
)

type globalFlags struct {
	configDir  string
	configPath string
	rulesDir   string
}

func newRootCmd() *cobra.Command {
	var gf globalFlags
	root := &cobra.Command{
		Use:           "convertctl",
		Short:         "Inspect, export and query item conversion rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.configDir, "configs", "./configs", "config directory (items.json, recipes.json)")
	root.PersistentFlags().StringVar(&gf.configPath, "config", "", "path to converter.yaml (default: <configs>/converter.yaml)")
	root.PersistentFlags().StringVar(&gf.rulesDir, "rules", "", "rule document directory (overrides rules_dir)")

	root.AddCommand(
		newGenerateCmd(&gf),
		newStatsCmd(&gf),
		newPathCmd(&gf),
		newAuditCmd(),
	)
	return root
}

// env is everything the offline commands need.
type env struct {
	tune tuning.Tuning
	cats *catalogs.Catalogs
	src  session.Sources
}

func loadEnv(gf *globalFlags) (*env, error) {
	tp := gf.configPath
	if tp == "" {
		tp = filepath.Join(gf.configDir, "converter.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		return nil, err
	}
	if gf.rulesDir != "" {
		tune.RulesDir = gf.rulesDir
	}
	cats, err := catalogs.Load(gf.configDir)
	if err != nil {
		return nil, err
	}
	cats.DefaultMaxStack = tune.DefaultMaxStack
	src, err := session.LoadSources(tune.RulesDir, tune.RuleGenerators(), cats)
	if err != nil {
		return nil, err
	}
	return &env{tune: tune, cats: cats, src: src}, nil
}

func (e *env) build() (*rules.Set, *graph.Graph, []error, error) {
	set, err := rules.NewStore().Replace(e.src.Merged())
	if err != nil {
		return nil, nil, nil, err
	}
	g, errs := graph.Build(set, graph.Options{
		Bidirectional: e.tune.BidirectionalByDefault,
		Duplicates:    e.tune.Duplicates(),
		Logger:        log.New(io.Discard, "", 0),
	})
	return set, g, append(append([]error{}, e.src.Bad...), errs...), nil
}

func newGenerateCmd(gf *globalFlags) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write generated rules as editable rule documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(gf)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(e.src.Generated))
			for name := range e.src.Generated {
				names = append(names, name)
			}
			sort.Strings(names)
			rs := make([]rules.Rule, 0, len(names))
			for _, name := range names {
				rs = append(rs, e.src.Generated[name])
			}
			n, err := rules.WriteDir(out, rs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rules to %s\n", n, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "generated", "output directory")
	return cmd
}

func newStatsCmd(gf *globalFlags) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print rule, vertex and edge counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(gf)
			if err != nil {
				return err
			}
			set, g, errs, err := e.build()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "rules:     %d (authored %d, generated %d)\n", set.Len(), len(e.src.Authored), len(e.src.Generated))
			fmt.Fprintf(w, "vertices:  %d\n", g.VertexCount())
			fmt.Fprintf(w, "edges:     %d\n", g.EdgeCount())
			fmt.Fprintf(w, "errors:    %d\n", len(errs))
			if verbose {
				for _, err := range errs {
					fmt.Fprintf(w, "  %v\n", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list build errors")
	return cmd
}

func newPathCmd(gf *globalFlags) *cobra.Command {
	var available int64
	cmd := &cobra.Command{
		Use:   "path FROM TO",
		Short: "Print the shortest conversion route and its ratio",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseKey(args[0])
			if err != nil {
				return err
			}
			to, err := parseKey(args[1])
			if err != nil {
				return err
			}
			e, err := loadEnv(gf)
			if err != nil {
				return err
			}
			_, g, _, err := e.build()
			if err != nil {
				return err
			}
			r := paths.New(graph.NewHolder(g), e.cats, e.tune.SpecialTags)
			route, ok := r.Path(g, from, to)
			if !ok {
				return fmt.Errorf("%w: %s -> %s", exec.ErrPathNotFound, from, to)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, route)
			fmt.Fprintf(w, "hops: %d\n", route.Hops())
			if available > 0 && !route.Overflow {
				units := route.Ratio.Units(available)
				fmt.Fprintf(w, "with %d: consume %d, produce %d\n", available, units, route.Ratio.Produce(units))
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&available, "count", "n", 0, "available source units to evaluate")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "audit FILE...",
		Short: "Print conversion records from audit log files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			outcomes := map[string]int{}
			for _, path := range args {
				err := persistlog.ReadJSONL(path, func(raw json.RawMessage) error {
					var rec exec.Record
					if err := json.Unmarshal(raw, &rec); err != nil {
						return err
					}
					outcomes[rec.Outcome]++
					if !summary {
						fmt.Fprintf(w, "%s %s %s %s->%s units=%d produced=%d %s\n",
							rec.Time.Format("2006-01-02T15:04:05Z07:00"), rec.Requester, rec.Backend,
							rec.From, rec.To, rec.Units, rec.Produced, rec.Outcome)
					}
					return nil
				})
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			if summary {
				keys := make([]string, 0, len(outcomes))
				for k := range outcomes {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(w, "%-20s %d\n", k, outcomes[k])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&summary, "summary", "s", false, "print counts per outcome only")
	return cmd
}

// parseKey accepts TYPE, TYPE#{"aux":...} as printed, or TYPE{"aux":...}.
func parseKey(s string) (item.Key, error) {
	s = strings.TrimSpace(s)
	typ, aux, hasAux := strings.Cut(s, item.AuxSeparator)
	if !hasAux {
		typ, aux, hasAux = strings.Cut(s, "{")
		aux = "{" + aux
	}
	if !hasAux {
		if typ == "" {
			return item.Key{}, fmt.Errorf("empty item id")
		}
		return item.NewKey(typ, ""), nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(aux), &m); err != nil {
		return item.Key{}, fmt.Errorf("item %s: aux: %w", typ, err)
	}
	return item.KeyOf(typ, m)
}
