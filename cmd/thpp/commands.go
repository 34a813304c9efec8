package main

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/born-ml/thpp/internal/archive"
	"github.com/born-ml/thpp/internal/loader"
	"github.com/born-ml/thpp/internal/serialization"
)

func runInspect(e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: thpp inspect FILE")
	}
	r, err := archive.Open(args[0], e.cfg.ReaderOptions(e.logger))
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	fmt.Fprintf(e.stdout, "version:   %d\n", h.Version)
	fmt.Fprintf(e.stdout, "alignment: %d\n", h.Alignment)
	if !h.Created.IsZero() {
		fmt.Fprintf(e.stdout, "created:   %s\n", h.Created.Format("2006-01-02 15:04:05 UTC"))
	}
	for _, k := range slices.Sorted(maps.Keys(h.Metadata)) {
		fmt.Fprintf(e.stdout, "meta:      %s=%s\n", k, h.Metadata[k])
	}
	fmt.Fprintln(e.stdout)

	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDTYPE\tSIZES\tBYTES\tSTORED\tCOMPRESSION\tOFFSET")
	for _, t := range h.Tensors {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%d\n",
			t.Name, t.DataType, formatSizes(t.Sizes), t.Size, t.Stored, t.Compression, t.Offset)
	}
	return tw.Flush()
}

func runVerify(e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: thpp verify FILE")
	}
	opts := e.cfg.ReaderOptions(e.logger)
	opts.Validation = archive.ValidationStrict
	r, err := archive.Open(args[0], opts)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := r.Verify(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %d tensors ok\n", args[0], len(r.Names()))
	return nil
}

func runConvert(e *env, args []string) error {
	flagSet := pflag.NewFlagSet("convert", pflag.ContinueOnError)
	compression := flagSet.String("compression", e.cfg.Codec.Compression, "payload compression: none, lz4, zstd, snappy or shuffle_lz4")
	alignment := flagSet.Int("alignment", e.cfg.Archive.Alignment, "payload alignment in bytes")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 2 {
		return errors.New("usage: thpp convert [--compression NAME] [--alignment N] IN OUT")
	}
	in, out := flagSet.Arg(0), flagSet.Arg(1)

	comp, err := serialization.ParseCompression(*compression)
	if err != nil {
		return err
	}

	r, err := archive.Open(in, e.cfg.ReaderOptions(e.logger))
	if err != nil {
		return err
	}
	defer r.Close()

	wopts := e.cfg.WriterOptions(e.logger)
	wopts.Compression = comp
	wopts.Alignment = *alignment
	w, err := archive.Create(out, wopts)
	if err != nil {
		return err
	}
	for k, v := range r.Metadata() {
		w.SetMetadata(k, v)
	}
	for _, name := range r.Names() {
		if err := copyTensor(r, w, name); err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s -> %s: %d tensors, compression %s\n", in, out, w.Len(), comp)
	return nil
}

func runImport(e *env, args []string) error {
	flagSet := pflag.NewFlagSet("import", pflag.ContinueOnError)
	compression := flagSet.String("compression", e.cfg.Codec.Compression, "payload compression: none, lz4, zstd, snappy or shuffle_lz4")
	skip := flagSet.Bool("skip-unsupported", false, "skip tensors whose dtype has no element type instead of failing")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 2 {
		return errors.New("usage: thpp import [--compression NAME] [--skip-unsupported] IN.safetensors OUT")
	}
	in, out := flagSet.Arg(0), flagSet.Arg(1)

	comp, err := serialization.ParseCompression(*compression)
	if err != nil {
		return err
	}
	r, err := loader.OpenSafeTensors(in)
	if err != nil {
		return err
	}
	defer r.Close()

	wopts := e.cfg.WriterOptions(e.logger)
	wopts.Compression = comp
	w, err := archive.Create(out, wopts)
	if err != nil {
		return err
	}
	for k, v := range r.Metadata() {
		w.SetMetadata(k, v)
	}
	skipped := 0
	for _, name := range r.TensorNames() {
		wire, err := r.Wire(name)
		if errors.Is(err, loader.ErrUnsupportedDType) && *skip {
			e.logger.Warn("skipping tensor", "name", name, "error", err)
			skipped++
			continue
		}
		if err != nil {
			_ = w.Close()
			return err
		}
		err = w.AddWire(name, wire)
		wire.Release()
		if err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s -> %s: %d tensors, %d skipped, compression %s\n", in, out, w.Len(), skipped, comp)
	return nil
}

func copyTensor(r *archive.Reader, w *archive.Writer, name string) error {
	wire, err := r.Wire(name)
	if err != nil {
		return err
	}
	defer wire.Release()
	return w.AddWire(name, wire)
}

func formatSizes(sizes []int64) string {
	parts := make([]string, len(sizes))
	for i, s := range sizes {
		parts[i] = fmt.Sprint(s)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
