package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mospeada/internal/repo"
	"github.com/samcharles93/mospeada/internal/safetensors"
)

type inspectOptions struct {
	tensors      bool
	tensorLimit  int
	tensorFilter string
	template     bool
}

func inspectCmd() *cli.Command {
	var opts inspectOptions

	flags := append(modelFlags(),
		&cli.BoolFlag{Name: "tensors", Usage: "list the tensors of every safetensors file", Destination: &opts.tensors},
		&cli.IntFlag{Name: "tensors-limit", Usage: "limit tensor listing per file (0 = no limit)", Value: 50, Destination: &opts.tensorLimit},
		&cli.StringFlag{Name: "tensor-filter", Usage: "substring filter for tensor listing", Destination: &opts.tensorFilter},
		&cli.BoolFlag{Name: "chat-template", Usage: "print the chat template source", Destination: &opts.template},
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Show the files, generation config and weights of a model repository",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, fileConfig)
			r, err := openRepo(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := inspectRepo(os.Stdout, r, opts); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return nil
		},
	}
}

func inspectRepo(w io.Writer, r repo.Repo, opts inspectOptions) error {
	p := printer{w: w}
	p.section("Repository")
	p.row("model", r.ModelID())
	for _, name := range []string{
		repo.FileConfig,
		repo.FileGenerationConfig,
		repo.FileTokenizer,
		repo.FileTokenizerConfig,
		repo.FileSafetensors,
		repo.FileSafetensorsIndex,
	} {
		status := "missing"
		if _, err := r.Get(name); err == nil {
			status = "present"
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		p.row(name, status)
	}

	mc, err := repo.LoadModelConfig(r)
	if err != nil {
		return err
	}
	p.section("Model")
	p.row("arch", mc.Arch())
	p.rowInt("vocab size", mc.VocabSize)
	p.rowInt("hidden size", mc.HiddenSize)

	gc, err := repo.LoadGenerationConfig(r)
	if err != nil {
		return err
	}
	p.section("Generation")
	p.row("sampling", gc.Sampling().String())
	p.row("eos token ids", fmt.Sprint(gc.EOSTokenIDs()))
	p.row("repetition penalty", fmt.Sprintf("%g", gc.RepetitionPenaltyOr(1)))
	p.row("max new tokens", fmt.Sprint(gc.MaxNewTokensOr(0)))

	if tok, err := repo.LoadTokenizer(r); err == nil {
		p.section("Tokenizer")
		p.rowInt("vocab size", tok.VocabSize())
		if e, ok := tok.(interface{ EOSID() int }); ok {
			p.row("eos id", fmt.Sprint(e.EOSID()))
		}
	} else {
		p.row("tokenizer", err.Error())
	}

	if tpl, err := repo.LoadChatTemplate(r, templateID); err == nil {
		p.section("Chat template")
		p.row("family", tpl.Family())
		if opts.template {
			fmt.Fprintln(w, tpl.Source())
		}
	}

	files, err := r.SafetensorsFiles()
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			p.section("Weights")
			p.row("safetensors", "none")
			return nil
		}
		return err
	}
	p.section("Weights")
	for _, f := range files {
		if err := p.safetensors(f, opts); err != nil {
			return err
		}
	}
	return nil
}

type printer struct {
	w io.Writer
}

func (p printer) section(title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Fprintf(p.w, "\n%s\n--- %s ---\n%s\n", line, title, line)
}

func (p printer) row(label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(p.w, "%-24s %s\n", label+":", value)
}

func (p printer) rowInt(label string, v int) {
	if v == 0 {
		return
	}
	p.row(label, fmt.Sprintf("%d", v))
}

func (p printer) safetensors(path string, opts inspectOptions) error {
	f, err := safetensors.Open(path)
	if err != nil {
		return err
	}
	var size int64
	if st, err := os.Stat(path); err == nil {
		size = st.Size()
	}
	p.row(filepath.Base(path), fmt.Sprintf("%d tensors, %s", len(f.Tensors), formatBytes(uint64(size))))
	if len(f.Metadata) > 0 {
		keys := make([]string, 0, len(f.Metadata))
		for k := range f.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			p.row("  "+k, f.Metadata[k])
		}
	}
	if !opts.tensors {
		return nil
	}
	shown := 0
	for _, name := range f.Names() {
		if opts.tensorFilter != "" && !strings.Contains(name, opts.tensorFilter) {
			continue
		}
		if opts.tensorLimit > 0 && shown >= opts.tensorLimit {
			fmt.Fprintf(p.w, "  ... (limit %d reached)\n", opts.tensorLimit)
			break
		}
		info, _ := f.Tensor(name)
		fmt.Fprintf(p.w, "  %-40s %-5s %s\n", name, info.DType, formatShape(info.Shape))
		shown++
	}
	return nil
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, v := range shape {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
