// Command ingest loads training manuals into the retrieval index of a tenant.
//
//	ingest -tenant claro manuais/atendimento.html manuais/
//
// Directories are walked recursively. Re-ingesting a file replaces the
// chunks previously stored for it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/portal-treinamento/core/internal/config"
	"github.com/portal-treinamento/core/internal/llm"
	"github.com/portal-treinamento/core/internal/retrieval"
	"github.com/portal-treinamento/core/internal/store"
	"github.com/schollz/progressbar/v3"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the command and returns its exit status: 2 for usage errors,
// 1 for failures.
func run(args []string) int {
	flags := flag.NewFlagSet("ingest", flag.ContinueOnError)
	var (
		tenant    = flags.String("tenant", "", "tenant ID that owns the documents (required)")
		chunkSize = flags.Int("chunk-size", retrieval.DefaultChunkSize, "maximum characters per chunk")
		overlap   = flags.Int("chunk-overlap", retrieval.DefaultChunkOverlap, "characters shared by consecutive chunks")
		batch     = flags.Int("batch", 32, "chunks embedded per request")
		quiet     = flags.Bool("quiet", false, "disable the progress bar")
	)
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "usage: ingest -tenant ID [flags] FILE|DIR...\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if *tenant == "" || flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	cfg, err := config.LoadIngest()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := collect(flags.Args())
	if err != nil {
		slog.Error("Failed to list input files", "error", err)
		return 1
	}
	if len(files) == 0 {
		slog.Error("No supported files found (.txt, .md, .html)")
		return 1
	}

	repo, err := store.New(ctx, store.Options{Driver: cfg.DB.Driver, Path: cfg.DB.Path, DSN: cfg.DB.DSN})
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return 1
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	embedder, err := llm.NewOpenAIEmbedder(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIBaseURL, cfg.LLM.EmbeddingModel)
	if err != nil {
		slog.Error("Failed to initialize embedder", "error", err)
		return 1
	}
	index := retrieval.NewIndex(embedder, repo, slog.Default())

	failed := 0
	total := 0
	for _, path := range files {
		n, err := ingestFile(ctx, index, *tenant, path, retrieval.IngestOptions{
			ChunkSize:    *chunkSize,
			ChunkOverlap: *overlap,
			BatchSize:    *batch,
		}, *quiet)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Error("Ingestion interrupted")
				return 1
			}
			slog.Error("Failed to ingest file", "path", path, "error", err)
			failed++
			continue
		}
		total += n
	}

	fmt.Printf("ingested %d chunks from %d files into tenant %q\n", total, len(files)-failed, *tenant)
	if failed > 0 {
		return 1
	}
	return 0
}

func ingestFile(ctx context.Context, index *retrieval.Index, tenant, path string, opts retrieval.IngestOptions, quiet bool) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	text, err := retrieval.ExtractText(path, f)
	if err != nil {
		return 0, err
	}

	var bar *progressbar.ProgressBar
	if !quiet {
		opts.Progress = func(done, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total), filepath.Base(path))
			}
			_ = bar.Set(done)
		}
	}
	n, err := index.Ingest(ctx, tenant, filepath.Base(path), text, opts)
	if bar != nil {
		_ = bar.Finish()
	}
	return n, err
}

// collect expands directories into the supported files below them.
func collect(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && retrieval.Supported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
