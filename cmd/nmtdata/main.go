// nmtdata downloads translation datasets and inspects the batches produced from them.
//
//	nmtdata download iwslt15
//	nmtdata vocab iwslt15
//	nmtdata batches iwslt15 --mode test --seq-len 20 --batch-size 4 -n 2
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/go-nmt"
	"github.com/gomlx/go-nmt/datasets"
	"github.com/gomlx/go-nmt/masks"
	"github.com/gomlx/go-nmt/pipeline"
	"github.com/gomlx/go-nmt/posenc"
	"github.com/gomlx/go-nmt/tokenizers/api"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

type globalFlags struct {
	dir             string
	registry        string
	tokenizerConfig string
}

// tokenizer returns the configuration of the vocabularies, nil for the default one.
func (g *globalFlags) tokenizer() (*api.Config, error) {
	if g.tokenizerConfig == "" {
		return nil, nil
	}
	return api.ParseConfigFile(g.tokenizerConfig)
}

func (g *globalFlags) lookup(name string) (*datasets.Store, datasets.Descriptor, error) {
	registry := datasets.DefaultRegistry()
	if g.registry != "" {
		var err error
		registry, err = datasets.LoadRegistry(g.registry)
		if err != nil {
			return nil, datasets.Descriptor{}, err
		}
	}
	d, err := registry.Lookup(name)
	if err != nil {
		return nil, datasets.Descriptor{}, err
	}
	return datasets.New(g.dir), d, nil
}

func newDownloadCmd(g *globalFlags) *cobra.Command {
	var force, progress bool
	cmd := &cobra.Command{
		Use:   "download DATASET",
		Short: "Download the files of a dataset, if not yet downloaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, d, err := g.lookup(args[0])
			if err != nil {
				return err
			}
			dir, err := store.WithProgressBar(progress).Download(cmd.Context(), d, force)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Download all files again")
	cmd.Flags().BoolVar(&progress, "progress", true, "Display progress bars")
	return cmd
}

func fileSize(filePath string) string {
	info, err := os.Stat(filePath)
	if err != nil {
		return "-"
	}
	return humanize.Bytes(uint64(info.Size()))
}

func newVocabCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "vocab DATASET",
		Short: "Show the vocabularies of a downloaded dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, d, err := g.lookup(args[0])
			if err != nil {
				return err
			}
			tokenizerConfig, err := g.tokenizer()
			if err != nil {
				return err
			}
			dir := store.DatasetDir(d)
			source, target, err := pipeline.LoadTokenizers(d, dir, tokenizerConfig)
			if err != nil {
				return err
			}
			sourceFile, targetFile := d.VocabFiles(dir)

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"SIDE", "LANGUAGE", "FILE", "FILE SIZE", "VOCABULARY SIZE"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.Append([]string{"source", d.SourceLang, filepath.Base(sourceFile), fileSize(sourceFile), strconv.Itoa(source.VocabSize())})
			table.Append([]string{"target", d.TargetLang, filepath.Base(targetFile), fileSize(targetFile), strconv.Itoa(target.VocabSize())})
			table.Render()
			return nil
		},
	}
}

type batchesFlags struct {
	mode       string
	seqLen     int
	batchSize  int
	numBatches int
	dModel     int
	seed       uint64
	testSplits []string
}

func newBatchesCmd(g *globalFlags) *cobra.Command {
	var f batchesFlags
	cmd := &cobra.Command{
		Use:   "batches DATASET",
		Short: "Print the first batches produced from a downloaded dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, d, err := g.lookup(args[0])
			if err != nil {
				return err
			}
			mode, err := pipeline.ParseMode(f.mode)
			if err != nil {
				return err
			}
			tokenizerConfig, err := g.tokenizer()
			if err != nil {
				return err
			}
			config := pipeline.NewConfig(f.seqLen, f.batchSize).WithSeed(f.seed).WithLabels(false)
			p, err := pipeline.FromDescriptor(config, mode, d, store.DatasetDir(d), tokenizerConfig, f.testSplits...)
			if err != nil {
				return err
			}
			return printBatches(cmd.Context(), cmd.OutOrStdout(), p, f)
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", "test", "Pipeline mode: train or test")
	cmd.Flags().IntVar(&f.seqLen, "seq-len", 50, "Length of the sequences, start and end tokens included")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 32, "Number of examples per batch")
	cmd.Flags().IntVarP(&f.numBatches, "num-batches", "n", 3, "Number of batches to print")
	cmd.Flags().IntVar(&f.dModel, "d-model", 512, "Model dimension used for the positional encoding")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "Seed of the training shuffle")
	cmd.Flags().StringSliceVar(&f.testSplits, "test-splits", nil, "Test split prefixes, replacing the dataset's")
	return cmd
}

func printBatches(ctx context.Context, w io.Writer, p *pipeline.Pipeline, f batchesFlags) error {
	decoder := p.SourceEncoder().Tokenizer()
	padID := p.SourceEncoder().PadID()
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"BATCH", "EXAMPLES", "NON-PAD SOURCE KEYS", "POSITIONAL TABLE", "FIRST SOURCE"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	count := 0
	for batch, err := range p.Batches(ctx) {
		if err != nil {
			return err
		}
		padding, err := masks.Padding(batch.SourceInputs, padID)
		if err != nil {
			return err
		}
		visible := 0
		for b := 0; b < batch.Size; b++ {
			for j := 0; j < batch.InputLen; j++ {
				visible += int(padding.At(b, 0, j))
			}
		}
		encoding, err := posenc.ForIDs(batch.SourceInputs, f.dModel)
		if err != nil {
			return err
		}
		table.Append([]string{
			strconv.Itoa(count),
			strconv.Itoa(batch.Size),
			fmt.Sprintf("%.1f%%", 100*float64(visible)/float64(batch.Size*batch.InputLen)),
			fmt.Sprintf("%dx%dx%d", len(encoding), len(encoding[0]), len(encoding[0][0])),
			decoder.Decode(batch.SourceInputs[0]),
		})
		count++
		if count == f.numBatches {
			break
		}
	}
	table.Render()
	return nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:     "nmtdata",
		Short:   "Prepare translation datasets for sequence-to-sequence training",
		Version: nmt.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
		},
	}
	rootCmd.PersistentFlags().StringVar(&g.dir, "dir", datasets.DefaultCacheDir(), "Directory where datasets are stored")
	rootCmd.PersistentFlags().StringVar(&g.registry, "registry", "", "YAML file with dataset descriptors, instead of the built-in ones")
	rootCmd.PersistentFlags().StringVar(&g.tokenizerConfig, "tokenizer-config", "",
		"tokenizer_config.json file with the reserved tokens and normalization of the vocabularies")

	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	rootCmd.AddCommand(newDownloadCmd(g), newVocabCmd(g), newBatchesCmd(g))
	return rootCmd
}

func main() {
	defer klog.Flush()
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		klog.Errorf("%+v", errors.WithStack(err))
		os.Exit(1)
	}
}
