package ctl

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/featurebasedb/lakeingest"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/reader"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
)

const nullValue = "NULL"

// ReadCommand prints the contents of an entity table.
type ReadCommand struct {
	Config *Config

	Entity string

	// FromSnapshot reads only committed files.
	FromSnapshot bool

	// Limit caps the rows printed. Zero prints all of them.
	Limit int

	*lakeingest.CmdIO
}

// NewReadCommand returns a new instance of ReadCommand.
func NewReadCommand(stdin io.Reader, stdout, stderr io.Writer) *ReadCommand {
	return &ReadCommand{
		Config: NewConfig(),
		CmdIO:  lakeingest.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the main program execution.
func (cmd *ReadCommand) Run(ctx context.Context) error {
	if cmd.Entity == "" {
		return errors.New(ErrConfig, "--entity is required")
	}
	log := cmd.Logger()

	store, err := cmd.Config.OpenStore()
	if err != nil {
		return errors.Wrap(err, "opening store")
	}
	r := reader.New(store, nil, cmd.Config.Prefix, log)
	var opts []reader.Option
	if cmd.FromSnapshot {
		cat, closer, err := cmd.Config.OpenCatalog(log)
		if err != nil {
			return err
		}
		defer closer.Close()
		r = reader.New(store, cat, cmd.Config.Prefix, log)
		opts = append(opts, reader.FromSnapshot())
	}

	tbl, err := r.Read(ctx, cmd.Config.Namespace, cmd.Entity, opts...)
	if err != nil {
		return err
	}
	return cmd.write(tbl)
}

func (cmd *ReadCommand) write(tbl *reader.Table) error {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.Stdout)

	// Don't uppercase the header values.
	t.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(tbl.Columns))
	for i, c := range tbl.Columns {
		header[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
	}
	t.AppendHeader(header)

	rows := tbl.Rows
	if cmd.Limit > 0 && len(rows) > cmd.Limit {
		rows = rows[:cmd.Limit]
	}
	for _, row := range rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = formatValue(v)
		}
		t.AppendRow(out)
	}
	t.Render()

	_, err := fmt.Fprintf(cmd.Stdout, "\n%d of %d rows from %d files\n", len(rows), len(tbl.Rows), len(tbl.Files))
	return err
}

// formatValue renders a table value; go-pretty doesn't expect nil values.
func formatValue(v interface{}) interface{} {
	switch v := v.(type) {
	case nil:
		return nullValue
	case time.Time:
		return v.Format("2006-01-02T15:04:05.000Z07:00")
	}
	return v
}
