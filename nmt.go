// Package nmt only holds the version of the set of tools to prepare translation corpora for GoMLX models.
//
// The sub-packages, leaf-first:
//
//   - tokenizers: word-level vocabularies (and SentencePiece models) mapping text to ids.
//   - sequence: turns one line of text into a bounded, padded id sequence.
//   - pipeline: pairs, filters, shuffles and batches aligned source/target corpora.
//   - masks and posenc: padding/causal attention masks and the sinusoidal positional table.
//   - datasets: descriptors of the known translation datasets, and the download of their files.
package nmt

// Version of the library.
// Manually kept in sync with project releases.
var Version = "v0.0.0-dev"
