// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/ragwell/corpus/pkg/apperror"
)

// ChromemConfig configures the embedded chromem-go index. Leaving
// PersistPath empty keeps everything in memory; set it to survive
// restarts without standing up a separate vector database process.
type ChromemConfig struct {
	PersistPath string
	Compress    bool
}

// ChromemIndex implements Index over chromem-go, the recommended
// backend for single-process deployments and local development that
// don't want to run a separate vector database. chromem-go stores
// metadata as string maps and only matches filters by exact equality,
// so ChromemIndex tracks its own id set per collection to support
// Scroll and applies the full Filter semantics (including the ordered
// comparisons chromem can't express) on the client side.
type ChromemIndex struct {
	db          *chromem.DB
	persistPath string
	compress    bool

	mu          sync.Mutex
	collections map[string]*chromem.Collection
	ids         map[string]map[string]struct{}
}

// NewChromemIndex opens (or creates) a chromem-go database per cfg.
func NewChromemIndex(cfg ChromemConfig) (*ChromemIndex, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, apperror.Wrap(apperror.Internal, "create chromem persist directory", err)
		}

		dbPath := cfg.PersistPath + "/vectors.gob"
		if cfg.Compress {
			dbPath += ".gz"
		}

		if _, err := os.Stat(dbPath); err == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if err != nil {
				slog.Warn("failed to load chromem database, starting fresh", "path", dbPath, "error", err)
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemIndex{
		db:          db,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
		ids:         make(map[string]map[string]struct{}),
	}, nil
}

// identityEmbed is the embedding function chromem-go requires for a
// collection; the pipeline always supplies pre-computed vectors, so
// this is never actually invoked.
func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("chromem embedding function invoked; vectors must be pre-computed")
}

func (idx *ChromemIndex) getCollection(name string) (*chromem.Collection, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if col, ok := idx.collections[name]; ok {
		return col, nil
	}

	col, err := idx.db.GetOrCreateCollection(name, nil, identityEmbed)
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, fmt.Sprintf("get/create chromem collection %q", name), err)
	}
	idx.collections[name] = col
	idx.ids[name] = make(map[string]struct{})
	return col, nil
}

func (idx *ChromemIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	_, err := idx.getCollection(collection)
	return err
}

func (idx *ChromemIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	col, err := idx.getCollection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, chromem.Document{
			ID:        p.ID,
			Metadata:  payloadToChromem(p.Payload),
			Embedding: p.Vector,
		})
	}

	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return apperror.Wrap(apperror.ExternalService, "upsert chromem documents", err)
	}

	idx.mu.Lock()
	set := idx.ids[collection]
	for _, p := range points {
		set[p.ID] = struct{}{}
	}
	idx.mu.Unlock()

	return idx.persist()
}

func (idx *ChromemIndex) Search(ctx context.Context, collection string, query []float32, k int, scoreThreshold float32, filter Filter) ([]SearchResult, error) {
	col, err := idx.getCollection(collection)
	if err != nil {
		return nil, err
	}

	where, exact := whereForChromem(filter)
	n := k
	if !exact && len(filter.Conditions) > 0 {
		n = col.Count()
	}
	if n <= 0 {
		return nil, nil
	}
	if n > col.Count() {
		n = col.Count()
	}
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, query, n, where, nil)
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, "query chromem", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		payload := payloadFromChromem(r.Metadata)
		if !filter.Match(payload) {
			continue
		}
		score := normalizeQdrantScore(r.Similarity)
		if score < scoreThreshold {
			continue
		}
		out = append(out, SearchResult{ID: r.ID, Score: score, Payload: payload})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (idx *ChromemIndex) Scroll(ctx context.Context, collection string, filter Filter, pageSize int, offset string) (ScrollPage, error) {
	col, err := idx.getCollection(collection)
	if err != nil {
		return ScrollPage{}, err
	}

	idx.mu.Lock()
	ids := make([]string, 0, len(idx.ids[collection]))
	for id := range idx.ids[collection] {
		ids = append(ids, id)
	}
	idx.mu.Unlock()
	sort.Strings(ids)

	start := 0
	if offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			return ScrollPage{}, apperror.New(apperror.Validation, "invalid scroll offset").WithDetails(map[string]any{"offset": offset})
		}
		start = n
	}

	var matched []Point
	cursor := start
	for cursor < len(ids) && (pageSize <= 0 || len(matched) < pageSize) {
		doc, err := col.GetByID(ctx, ids[cursor])
		cursor++
		if err != nil {
			continue
		}
		payload := payloadFromChromem(doc.Metadata)
		if !filter.Match(payload) {
			continue
		}
		matched = append(matched, Point{ID: doc.ID, Vector: doc.Embedding, Payload: payload})
	}

	page := ScrollPage{Points: matched}
	if cursor < len(ids) {
		page.NextOffset = strconv.Itoa(cursor)
	}
	return page, nil
}

func (idx *ChromemIndex) Get(ctx context.Context, collection string, ids []string) ([]Point, error) {
	col, err := idx.getCollection(collection)
	if err != nil {
		return nil, err
	}

	out := make([]Point, 0, len(ids))
	for _, id := range ids {
		doc, err := col.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, Point{ID: doc.ID, Vector: doc.Embedding, Payload: payloadFromChromem(doc.Metadata)})
	}
	return out, nil
}

func (idx *ChromemIndex) Delete(ctx context.Context, collection string, ids []string) error {
	col, err := idx.getCollection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return apperror.Wrap(apperror.ExternalService, "delete chromem documents", err)
	}

	idx.mu.Lock()
	set := idx.ids[collection]
	for _, id := range ids {
		delete(set, id)
	}
	idx.mu.Unlock()

	return idx.persist()
}

func (idx *ChromemIndex) Close() error {
	return idx.persist()
}

func (idx *ChromemIndex) persist() error {
	if idx.persistPath == "" {
		return nil
	}
	dbPath := idx.persistPath + "/vectors.gob"
	if idx.compress {
		dbPath += ".gz"
	}
	//nolint:staticcheck // Export is the only supported persistence API as of chromem-go v0.7.
	if err := idx.db.Export(dbPath, idx.compress, ""); err != nil {
		return apperror.Wrap(apperror.Internal, "persist chromem database", err)
	}
	return nil
}

const chromemUserMetadataKey = "user_metadata_json"

func payloadToChromem(p Payload) map[string]string {
	out := map[string]string{
		"document_id": p.DocumentID,
		"chunk_id":    p.ChunkID,
		"source":      p.Source,
		"page":        strconv.Itoa(p.Page),
		"chunk_index": strconv.Itoa(p.ChunkIndex),
		"created_at":  p.CreatedAt.Format(time.RFC3339Nano),
	}
	if len(p.UserMetadata) > 0 {
		if raw, err := json.Marshal(p.UserMetadata); err == nil {
			out[chromemUserMetadataKey] = string(raw)
		}
	}
	return out
}

func payloadFromChromem(meta map[string]string) Payload {
	p := Payload{UserMetadata: make(map[string]any)}
	p.DocumentID = meta["document_id"]
	p.ChunkID = meta["chunk_id"]
	p.Source = meta["source"]
	if n, err := strconv.Atoi(meta["page"]); err == nil {
		p.Page = n
	}
	if n, err := strconv.Atoi(meta["chunk_index"]); err == nil {
		p.ChunkIndex = n
	}
	if t, err := time.Parse(time.RFC3339Nano, meta["created_at"]); err == nil {
		p.CreatedAt = t
	}
	if raw, ok := meta[chromemUserMetadataKey]; ok {
		_ = json.Unmarshal([]byte(raw), &p.UserMetadata)
	}
	return p
}

// whereForChromem pushes down only the conditions chromem-go can
// express natively: top-level equality on string-encodable fields.
// exact reports whether every condition in filter was pushed down, so
// the caller knows whether client-side filtering alone can be trusted
// to find all matches within the requested candidate count.
func whereForChromem(filter Filter) (where map[string]string, exact bool) {
	exact = true
	for _, c := range filter.Conditions {
		if c.Op != OpEq && c.Op != "" {
			exact = false
			continue
		}
		if strings.HasPrefix(c.Path, "user_metadata.") {
			exact = false
			continue
		}
		if where == nil {
			where = make(map[string]string)
		}
		where[c.Path] = fmt.Sprintf("%v", c.Value)
	}
	return where, exact
}

var _ Index = (*ChromemIndex)(nil)
