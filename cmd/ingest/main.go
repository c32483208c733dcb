// Command ingest builds the retrieval corpus from a directory of policy
// documents: extract, chunk, embed, upsert to Qdrant, and write the metadata
// side files consumed by the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	ai "github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai"
	realai "github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai/real"
	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/observability"
	tikaext "github.com/fairyhunter13/msme-loan-scorer/internal/adapter/textextractor/tika"
	qdrantcli "github.com/fairyhunter13/msme-loan-scorer/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/msme-loan-scorer/internal/config"
	"github.com/fairyhunter13/msme-loan-scorer/internal/ingest"
)

func main() {
	docsDir := flag.String("docs", "docs", "directory of policy documents to ingest")
	manifest := flag.String("manifest", "", "optional YAML manifest enriching document metadata")
	chunkTokens := flag.Int("chunk-tokens", 400, "tokens per chunk")
	overlap := flag.Int("overlap-tokens", 50, "token overlap between chunks")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	aicl := ai.NewEmbedCache(realai.New(cfg), cfg.EmbedCacheSize)
	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	extractor := tikaext.New(cfg.TikaURL)

	pipeline := ingest.New(aicl, extractor, qcli, ingest.Options{
		Collection:    cfg.QdrantCollection,
		ChunkTokens:   *chunkTokens,
		OverlapTokens: *overlap,
		ManifestPath:  *manifest,
		WorkingDir:    cfg.WorkingDir,
		Model:         cfg.EmbeddingsModel,
	})

	sum, err := pipeline.IngestDir(context.Background(), *docsDir)
	if err != nil {
		slog.Error("ingestion failed", slog.Any("error", err))
		os.Exit(1)
	}
	failed := 0
	for _, d := range sum.Documents {
		if d.Status != "success" {
			failed++
			slog.Warn("document failed", slog.String("file", d.Filename), slog.String("error", d.Error))
		}
	}
	slog.Info("ingestion finished",
		slog.Int("documents", len(sum.Documents)),
		slog.Int("failed", failed),
		slog.Int("chunks", sum.ChunksUpserted))
	if failed > 0 && failed == len(sum.Documents) {
		os.Exit(1)
	}
}
