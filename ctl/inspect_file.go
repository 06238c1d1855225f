// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/featurebasedb/lakeingest"
	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/reader"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
)

// InspectFileCommand displays the schema and sample rows of a data file.
type InspectFileCommand struct {
	Config *Config

	// Path is a key in the configured store or, if Local is set, a path on
	// the local filesystem.
	Path  string
	Local bool

	// Sample is the number of rows printed.
	Sample int

	*lakeingest.CmdIO
}

// NewInspectFileCommand returns a new instance of InspectFileCommand.
func NewInspectFileCommand(stdin io.Reader, stdout, stderr io.Writer) *InspectFileCommand {
	return &InspectFileCommand{
		Config: NewConfig(),
		Sample: 10,
		CmdIO:  lakeingest.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run displays schema and samples data from a data file.
func (cmd *InspectFileCommand) Run(ctx context.Context) error {
	data, err := cmd.load(ctx)
	if err != nil {
		return err
	}

	info, err := columnar.Inspect(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Stdout, "Name: %s\n", cmd.Path)
	fmt.Fprintf(cmd.Stdout, "Size: %d bytes\n", len(data))
	fmt.Fprintf(cmd.Stdout, "Checksum: %s\n", columnar.Checksum(data))
	fmt.Fprintf(cmd.Stdout, "Rows: %d\n", info.Rows)
	fmt.Fprintf(cmd.Stdout, "Row groups: %d\n", info.RowGroups)
	if info.Compression != "" {
		fmt.Fprintf(cmd.Stdout, "Compression: %s\n", info.Compression)
	}
	if partition, ok := columnar.ParsePartition(cmd.Path); ok {
		fmt.Fprintf(cmd.Stdout, "Partition: %s=%s %s=%s\n",
			columnar.PartitionIngestDate, partition[columnar.PartitionIngestDate],
			columnar.PartitionRunID, partition[columnar.PartitionRunID])
	}

	fields := info.Schema.Fields()
	st := table.NewWriter()
	st.SetOutputMirror(cmd.Stdout)
	st.Style().Format.Header = text.FormatDefault
	st.AppendHeader(table.Row{"#", "name", "type", "nullable"})
	for i, f := range fields {
		st.AppendRow(table.Row{i, f.Name, f.Type, f.Nullable})
	}
	fmt.Fprintln(cmd.Stdout, "\nSchema:")
	st.Render()

	if cmd.Sample <= 0 {
		return nil
	}
	tbl, err := columnar.Decode(ctx, data, memory.NewGoAllocator())
	if err != nil {
		return err
	}
	defer tbl.Release()
	rows, err := reader.Rows(tbl)
	if err != nil {
		return err
	}
	if len(rows) > cmd.Sample {
		rows = rows[:cmd.Sample]
	}

	rt := table.NewWriter()
	rt.SetOutputMirror(cmd.Stdout)
	rt.Style().Format.Header = text.FormatDefault
	header := make(table.Row, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}
	rt.AppendHeader(header)
	for _, row := range rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = formatValue(v)
		}
		rt.AppendRow(out)
	}
	fmt.Fprintln(cmd.Stdout, "\nSample:")
	rt.Render()
	return nil
}

func (cmd *InspectFileCommand) load(ctx context.Context) ([]byte, error) {
	if cmd.Path == "" {
		return nil, errors.New(ErrConfig, "a file is required")
	}
	if cmd.Local {
		data, err := os.ReadFile(cmd.Path)
		return data, errors.Wrap(err, "reading file")
	}
	store, err := cmd.Config.OpenStore()
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	data, err := store.Get(ctx, cmd.Path)
	return data, errors.Wrapf(err, "getting %s", cmd.Path)
}
