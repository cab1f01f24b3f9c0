package cmd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/internal/ingestion/capture"
)

func inspectCmd(a *app) *cobra.Command {
	var frames int
	cmd := &cobra.Command{
		Use:   "inspect <capture-file>",
		Short: "Decode a capture file written by ingest --capture.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.load(cmd); err != nil {
				return err
			}
			return inspectFile(cmd.OutOrStdout(), args[0], frames)
		},
	}
	cmd.Flags().IntVar(&frames, "frames", 0, "print the first N frames of each block")
	return cmd
}

func inspectFile(w io.Writer, path string, frames int) error {
	r, err := capture.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	frames = max(frames, 0)

	fmt.Fprintf(w, "%s: compression=%s\n", path, r.Compression())
	var blocks, records int
	var raw, stored int64
	for {
		b, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("block %d: %w", blocks, err)
		}
		n, err := printBlock(w, blocks, b, frames)
		if err != nil {
			return fmt.Errorf("block %d: %w", blocks, err)
		}
		blocks++
		records += n
		raw += int64(len(b.Payload))
		if b.StoredLen > 0 {
			stored += int64(b.StoredLen)
		} else {
			stored += int64(len(b.Payload))
		}
	}
	fmt.Fprintf(w, "total: %d blocks, %d records, %d bytes raw, %d bytes stored\n", blocks, records, raw, stored)
	return nil
}

func printBlock(w io.Writer, i int, b capture.Block, frames int) (int, error) {
	switch b.Kind {
	case capture.KindRecords:
		recs, err := b.Records()
		if err != nil {
			return 0, err
		}
		fmt.Fprintf(w, "#%d %s records=%d bytes=%d\n", i, b.Kind, len(recs), len(b.Payload))
		for _, r := range recs[:min(frames, len(recs))] {
			fmt.Fprintf(w, "    %10d  %s\n", r.DocID, r.Text)
		}
		return len(recs), nil
	case capture.KindMeta:
		recs, err := b.MetaRecords()
		if err != nil {
			return 0, err
		}
		fmt.Fprintf(w, "#%d %s records=%d bytes=%d\n", i, b.Kind, len(recs), len(b.Payload))
		for _, r := range recs[:min(frames, len(recs))] {
			fmt.Fprintf(w, "    %10d  %s - %s  %s\n", r.DocID, r.Title, r.Author, r.URI)
		}
		return len(recs), nil
	default:
		if len(b.Payload) >= 4 {
			k := binary.LittleEndian.Uint16(b.Payload)
			flags := binary.LittleEndian.Uint16(b.Payload[2:])
			fmt.Fprintf(w, "#%d %s k=%d flags=%#x bytes=%d\n", i, b.Kind, k, flags, len(b.Payload))
		} else {
			fmt.Fprintf(w, "#%d %s bytes=%d\n", i, b.Kind, len(b.Payload))
		}
		return 0, nil
	}
}
