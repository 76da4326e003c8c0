package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dosco/fxquery/core"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type ticketFlags struct {
	file       string
	user       int64
	mandator   int64
	supervisor bool
}

func (tf *ticketFlags) add(c *cobra.Command) {
	c.Flags().StringVar(&tf.file, "ticket", "", "YAML file with the user ticket")
	c.Flags().Int64Var(&tf.user, "user", 1, "user id")
	c.Flags().Int64Var(&tf.mandator, "mandator", 1, "mandator id")
	c.Flags().BoolVar(&tf.supervisor, "supervisor", true, "run as global supervisor")
}

func (tf *ticketFlags) ticket() (*core.Ticket, error) {
	if tf.file == "" {
		return &core.Ticket{
			UserID:           tf.user,
			MandatorID:       tf.mandator,
			GlobalSupervisor: tf.supervisor,
		}, nil
	}

	b, err := os.ReadFile(tf.file)
	if err != nil {
		return nil, err
	}
	var t core.Ticket
	if err := decodeYAML(b, &t); err != nil {
		return nil, errors.WithMessage(err, "ticket")
	}
	return &t, nil
}

func compileCmd() *cobra.Command {
	var text string
	var pretty bool
	var tf ticketFlags

	c := &cobra.Command{
		Use:   "compile [query-file]",
		Short: "Print the SQL of a CMIS query",
		Long: "Compile a CMIS query to SQL. The query is read from the -q flag " +
			"or from a file: .yml and .yaml files hold a structured query, " +
			"anything else CMIS SQL text.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := readQuery(args, text)
			if err != nil {
				return err
			}
			t, err := tf.ticket()
			if err != nil {
				return err
			}

			s, err := newService(true)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			sql, err := s.Engine().Compile(cmd.Context(), q, t)
			if err != nil {
				return err
			}
			return printSQL(cmd.OutOrStdout(), sql, pretty)
		},
	}

	c.Flags().StringVarP(&text, "query", "q", "", "CMIS SQL query text")
	c.Flags().BoolVar(&pretty, "pretty", false, "format the generated SQL")
	tf.add(c)
	return c
}

func queryCmd() *cobra.Command {
	var text string
	var showSQL bool
	var tf ticketFlags

	c := &cobra.Command{
		Use:   "query [query-file]",
		Short: "Run a CMIS query and print the rows as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := readQuery(args, text)
			if err != nil {
				return err
			}
			t, err := tf.ticket()
			if err != nil {
				return err
			}

			s, err := newService(false)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			res, err := s.Engine().Query(cmd.Context(), q, t)
			if err != nil {
				return err
			}
			if showSQL {
				if err := printSQL(cmd.ErrOrStderr(), res.SQL(), true); err != nil {
					return err
				}
			}

			b, err := resultYAML(res)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}

	c.Flags().StringVarP(&text, "query", "q", "", "CMIS SQL query text")
	c.Flags().BoolVar(&showSQL, "sql", false, "print the executed SQL to stderr")
	tf.add(c)
	return c
}

func searchCmd() *cobra.Command {
	var sqlOnly, pretty bool
	var tf ticketFlags

	c := &cobra.Command{
		Use:   "search <query-file>",
		Short: "Run a legacy FxSQL search from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var q core.SearchQuery
			if err := decodeYAML(b, &q); err != nil {
				return errors.Wrap(core.ErrInvalidQuery, err.Error())
			}

			t, err := tf.ticket()
			if err != nil {
				return err
			}

			s, err := newService(sqlOnly)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			if sqlOnly {
				sql, err := s.Engine().CompileSearch(cmd.Context(), &q, t)
				if err != nil {
					return err
				}
				return printSQL(cmd.OutOrStdout(), sql, pretty)
			}

			res, err := s.Engine().Search(cmd.Context(), &q, t)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(searchOutput(res))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	c.Flags().BoolVar(&sqlOnly, "sql", false, "only print the generated SQL")
	c.Flags().BoolVar(&pretty, "pretty", false, "format the generated SQL")
	tf.add(c)
	return c
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reload the environment file on every change and report errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newService(true)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck

			c, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			log.Infof("watching %s", s.Config().AbsolutePath(s.Config().EnvironmentFile))
			return s.Watch(c)
		},
	}
}

// readQuery reads a query from the text flag or the file argument
func readQuery(args []string, text string) (*core.Query, error) {
	if text != "" {
		return core.ParseQuery(text)
	}
	if len(args) == 0 {
		return nil, errors.New("a query file or the -q flag is required")
	}

	b, err := os.ReadFile(args[0])
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(args[0])) {
	case ".yml", ".yaml":
		var q core.Query
		if err := decodeYAML(b, &q); err != nil {
			return nil, errors.Wrap(core.ErrInvalidQuery, err.Error())
		}
		return &q, nil
	default:
		return core.ParseQuery(string(b))
	}
}

func decodeYAML(b []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	return dec.Decode(v)
}

func printSQL(w io.Writer, sql string, pretty bool) error {
	if pretty {
		sql = core.PrettySQL(sql)
	}
	_, err := fmt.Fprintln(w, sql)
	return err
}

// resultYAML encodes every row as a mapping in column order
func resultYAML(res *core.Result) ([]byte, error) {
	cols := res.Columns()
	list := &yaml.Node{Kind: yaml.SequenceNode}

	for _, row := range res.Rows() {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for i, v := range row {
			var val yaml.Node
			if err := val.Encode(v); err != nil {
				return nil, errors.WithMessagef(err, "column %s", cols[i])
			}
			m.Content = append(m.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: cols[i]}, &val)
		}
		list.Content = append(list.Content, m)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(list); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type searchEntry struct {
	ID        int64 `yaml:"id"`
	Version   int   `yaml:"version"`
	Type      int64 `yaml:"type"`
	CreatedBy int64 `yaml:"created_by"`
}

type searchResult struct {
	Entries   []searchEntry `yaml:"entries"`
	Truncated bool          `yaml:"truncated"`
	Types     map[int64]int `yaml:"types"`
}

func searchOutput(res *core.SearchResult) searchResult {
	out := searchResult{
		Entries:   make([]searchEntry, 0, len(res.Entries())),
		Truncated: res.Truncated(),
		Types:     res.TypeCounts(),
	}
	for _, e := range res.Entries() {
		out.Entries = append(out.Entries, searchEntry{
			ID:        e.PK.ID,
			Version:   e.PK.Version,
			Type:      e.TypeID,
			CreatedBy: e.CreatedBy,
		})
	}
	return out
}
