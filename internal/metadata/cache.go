// Package metadata loads the retrieval side files written at ingestion time
// and exposes read-only lookup caches for citation resolution.
package metadata

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
)

// Side file names within the working directory.
const (
	IngestionSummaryFile = "ingestion_metadata.json"
	DocStatusFile        = "kv_store_doc_status.json"
)

// UnknownSource is the engine's placeholder for a missing file path.
const UnknownSource = "unknown_source"

// ingestionSummary mirrors the ingestion summary side file.
type ingestionSummary struct {
	IngestionSession struct {
		DocumentsProcessed []struct {
			Filename string                   `json:"filename"`
			Status   string                   `json:"status"`
			Metadata *domain.DocumentMetadata `json:"metadata"`
		} `json:"documents_processed"`
	} `json:"ingestion_session"`
}

// docStatusEntry mirrors one value of the engine's document status store.
type docStatusEntry struct {
	ChunksList []string `json:"chunks_list"`
	FilePath   string   `json:"file_path"`
}

// Caches holds the lookup structures built from the side files. All fields
// are populated once at load time and read-only thereafter. Iteration order
// over documents and chunks is the file order, kept in explicit slices since
// Go maps do not preserve insertion order.
type Caches struct {
	docs       map[string]domain.DocumentMetadata
	docOrder   []string
	chunkToDoc map[string]string
	chunkOrder []string
	docToPath  map[string]string
	pathOrder  []string
}

// Load reads both side files from dir. Missing or malformed files are
// non-fatal: loading degrades to empty caches with a logged warning.
func Load(dir string) *Caches {
	c := &Caches{
		docs:       make(map[string]domain.DocumentMetadata),
		chunkToDoc: make(map[string]string),
		docToPath:  make(map[string]string),
	}
	c.loadIngestionSummary(filepath.Join(dir, IngestionSummaryFile))
	c.loadDocStatus(filepath.Join(dir, DocStatusFile))
	slog.Info("metadata caches loaded",
		slog.Int("documents", len(c.docs)),
		slog.Int("chunks", len(c.chunkToDoc)),
		slog.Int("file_paths", len(c.docToPath)))
	return c
}

func (c *Caches) loadIngestionSummary(path string) {
	b, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("ingestion summary unavailable", slog.String("path", path), slog.Any("error", err))
		return
	}
	var summary ingestionSummary
	if err := json.Unmarshal(b, &summary); err != nil {
		slog.Warn("ingestion summary malformed", slog.String("path", path), slog.Any("error", err))
		return
	}
	for _, d := range summary.IngestionSession.DocumentsProcessed {
		if d.Status != "success" || d.Metadata == nil {
			continue
		}
		id := d.Metadata.DocumentID
		if id == "" {
			id = d.Filename
		}
		if _, exists := c.docs[id]; !exists {
			c.docOrder = append(c.docOrder, id)
		}
		c.docs[id] = *d.Metadata
	}
}

func (c *Caches) loadDocStatus(path string) {
	b, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("doc status store unavailable", slog.String("path", path), slog.Any("error", err))
		return
	}
	// Decode token by token so document ids keep the file's insertion order;
	// the positional citation fallback distributes results in that order.
	dec := json.NewDecoder(bytes.NewReader(b))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		slog.Warn("doc status store malformed", slog.String("path", path), slog.Any("error", err))
		return
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			slog.Warn("doc status store malformed", slog.String("path", path), slog.Any("error", err))
			return
		}
		id, ok := keyTok.(string)
		if !ok {
			slog.Warn("doc status store malformed", slog.String("path", path))
			return
		}
		var entry docStatusEntry
		if err := dec.Decode(&entry); err != nil {
			slog.Warn("doc status store malformed", slog.String("path", path), slog.Any("error", err))
			return
		}
		for _, chunkID := range entry.ChunksList {
			if chunkID == "" {
				continue
			}
			if _, exists := c.chunkToDoc[chunkID]; !exists {
				c.chunkOrder = append(c.chunkOrder, chunkID)
			}
			c.chunkToDoc[chunkID] = id
		}
		if entry.FilePath != "" && entry.FilePath != UnknownSource {
			if _, exists := c.docToPath[id]; !exists {
				c.pathOrder = append(c.pathOrder, id)
			}
			c.docToPath[id] = entry.FilePath
		}
	}
}

// Doc returns the full cached metadata for a document id.
func (c *Caches) Doc(id string) (domain.DocumentMetadata, bool) {
	m, ok := c.docs[id]
	return m, ok
}

// DocIDs returns document ids in load order.
func (c *Caches) DocIDs() []string { return c.docOrder }

// DocCount returns the number of cached documents.
func (c *Caches) DocCount() int { return len(c.docs) }

// ChunkDoc returns the owning document id for a chunk id.
func (c *Caches) ChunkDoc(chunkID string) (string, bool) {
	id, ok := c.chunkToDoc[chunkID]
	return id, ok
}

// ChunkIDs returns known chunk ids in load order.
func (c *Caches) ChunkIDs() []string { return c.chunkOrder }

// PathFor returns the on-disk file path of a document id.
func (c *Caches) PathFor(docID string) (string, bool) {
	p, ok := c.docToPath[docID]
	return p, ok
}

// PathDocIDs returns document ids that have a known file path, in load order.
func (c *Caches) PathDocIDs() []string { return c.pathOrder }

// Empty reports whether no document metadata was loaded.
func (c *Caches) Empty() bool { return len(c.docs) == 0 }
