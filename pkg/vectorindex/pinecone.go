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
	"strings"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ragwell/corpus/pkg/apperror"
)

// PineconeConfig configures the managed Pinecone backend. Unlike
// Qdrant and chromem-go, Pinecone indexes are provisioned out of band
// (console or API) and merely looked up here by name.
type PineconeConfig struct {
	APIKey    string
	Host      string
	IndexName string
}

// PineconeIndex implements Index against a managed Pinecone index.
// Collections map onto Pinecone indexes; EnsureCollection only checks
// that the index already exists, since Pinecone doesn't support
// creating indexes through the data-plane client.
type PineconeIndex struct {
	client       *pinecone.Client
	defaultIndex string
	conns        map[string]*pinecone.IndexConnection
}

// NewPineconeIndex creates a Pinecone-backed Index.
func NewPineconeIndex(cfg PineconeConfig) (*PineconeIndex, error) {
	if cfg.APIKey == "" {
		return nil, apperror.New(apperror.Validation, "pinecone api key is required")
	}

	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}

	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, "create pinecone client", err)
	}

	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "ragcore-index"
	}

	return &PineconeIndex{
		client:       client,
		defaultIndex: indexName,
		conns:        make(map[string]*pinecone.IndexConnection),
	}, nil
}

func (idx *PineconeIndex) indexName(collection string) string {
	if collection == "" {
		return idx.defaultIndex
	}
	return collection
}

func (idx *PineconeIndex) connection(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	name := idx.indexName(collection)
	if conn, ok := idx.conns[name]; ok {
		return conn, nil
	}

	desc, err := idx.client.DescribeIndex(ctx, name)
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, fmt.Sprintf("describe pinecone index %q", name), err)
	}

	conn, err := idx.client.Index(pinecone.NewIndexConnParams{Host: desc.Host})
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, "open pinecone index connection", err)
	}
	idx.conns[name] = conn
	return conn, nil
}

func (idx *PineconeIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	name := idx.indexName(collection)
	indexes, err := idx.client.ListIndexes(ctx)
	if err != nil {
		return apperror.Wrap(apperror.ExternalService, "list pinecone indexes", err)
	}
	for _, i := range indexes {
		if i.Name == name {
			return nil
		}
	}
	return apperror.New(apperror.ExternalService, fmt.Sprintf("pinecone index %q does not exist; create it via the console or API first", name))
}

func (idx *PineconeIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	conn, err := idx.connection(ctx, collection)
	if err != nil {
		return err
	}

	vectors := make([]*pinecone.Vector, 0, len(points))
	for _, p := range points {
		meta, err := structpb.NewStruct(payloadToPinecone(p.Payload))
		if err != nil {
			return apperror.Wrap(apperror.Internal, "convert payload to pinecone metadata", err)
		}
		vectors = append(vectors, &pinecone.Vector{
			Id:       p.ID,
			Values:   p.Vector,
			Metadata: meta,
		})
	}

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return apperror.Wrap(apperror.ExternalService, "upsert pinecone vectors", err)
	}
	return nil
}

func (idx *PineconeIndex) Search(ctx context.Context, collection string, query []float32, k int, scoreThreshold float32, filter Filter) ([]SearchResult, error) {
	conn, err := idx.connection(ctx, collection)
	if err != nil {
		return nil, err
	}

	var metaFilter *pinecone.MetadataFilter
	if pushed := filterToPinecone(filter); len(pushed) > 0 {
		metaFilter, err = structpb.NewStruct(pushed)
		if err != nil {
			return nil, apperror.Wrap(apperror.Internal, "convert filter to pinecone metadata filter", err)
		}
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          query,
		TopK:            uint32(k),
		MetadataFilter:  metaFilter,
		IncludeMetadata: true,
		IncludeValues:   true,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, "query pinecone", err)
	}

	out := make([]SearchResult, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Vector == nil {
			continue
		}
		payload := payloadFromPinecone(m.Vector.Metadata)
		if !filter.Match(payload) {
			continue
		}
		score := normalizeQdrantScore(m.Score)
		if score < scoreThreshold {
			continue
		}
		out = append(out, SearchResult{ID: m.Vector.Id, Score: score, Vector: m.Vector.Values, Payload: payload})
	}
	return out, nil
}

func (idx *PineconeIndex) Scroll(ctx context.Context, collection string, filter Filter, pageSize int, offset string) (ScrollPage, error) {
	conn, err := idx.connection(ctx, collection)
	if err != nil {
		return ScrollPage{}, err
	}

	req := &pinecone.ListVectorsRequest{Limit: uint32Ptr(uint32(pageSize))}
	if offset != "" {
		req.PaginationToken = &offset
	}

	resp, err := conn.ListVectors(ctx, req)
	if err != nil {
		return ScrollPage{}, apperror.Wrap(apperror.ExternalService, "list pinecone vectors", err)
	}

	ids := make([]string, 0, len(resp.VectorIds))
	for _, id := range resp.VectorIds {
		if id != nil {
			ids = append(ids, *id)
		}
	}

	points, err := idx.Get(ctx, collection, ids)
	if err != nil {
		return ScrollPage{}, err
	}

	matched := points[:0]
	for _, p := range points {
		if filter.Match(p.Payload) {
			matched = append(matched, p)
		}
	}

	page := ScrollPage{Points: matched}
	if resp.Pagination != nil && resp.Pagination.Next != "" {
		page.NextOffset = resp.Pagination.Next
	}
	return page, nil
}

func (idx *PineconeIndex) Get(ctx context.Context, collection string, ids []string) ([]Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	conn, err := idx.connection(ctx, collection)
	if err != nil {
		return nil, err
	}

	resp, err := conn.FetchVectors(ctx, ids)
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, "fetch pinecone vectors", err)
	}

	out := make([]Point, 0, len(resp.Vectors))
	for _, v := range resp.Vectors {
		out = append(out, Point{ID: v.Id, Vector: v.Values, Payload: payloadFromPinecone(v.Metadata)})
	}
	return out, nil
}

func (idx *PineconeIndex) Delete(ctx context.Context, collection string, ids []string) error {
	conn, err := idx.connection(ctx, collection)
	if err != nil {
		return err
	}
	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return apperror.Wrap(apperror.ExternalService, "delete pinecone vectors", err)
	}
	return nil
}

func (idx *PineconeIndex) Close() error {
	var firstErr error
	for _, conn := range idx.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func uint32Ptr(v uint32) *uint32 { return &v }

const pineconeUserMetadataKey = "user_metadata_json"

func payloadToPinecone(p Payload) map[string]any {
	out := map[string]any{
		"document_id": p.DocumentID,
		"chunk_id":    p.ChunkID,
		"source":      p.Source,
		"page":        p.Page,
		"chunk_index": p.ChunkIndex,
		"created_at":  p.CreatedAt.Format(time.RFC3339Nano),
	}
	if len(p.UserMetadata) > 0 {
		if raw, err := json.Marshal(p.UserMetadata); err == nil {
			out[pineconeUserMetadataKey] = string(raw)
		}
	}
	return out
}

func payloadFromPinecone(meta *structpb.Struct) Payload {
	p := Payload{UserMetadata: make(map[string]any)}
	if meta == nil {
		return p
	}
	m := meta.AsMap()
	if v, ok := m["document_id"].(string); ok {
		p.DocumentID = v
	}
	if v, ok := m["chunk_id"].(string); ok {
		p.ChunkID = v
	}
	if v, ok := m["source"].(string); ok {
		p.Source = v
	}
	if v, ok := m["page"].(float64); ok {
		p.Page = int(v)
	}
	if v, ok := m["chunk_index"].(float64); ok {
		p.ChunkIndex = int(v)
	}
	if v, ok := m["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			p.CreatedAt = t
		}
	}
	if v, ok := m[pineconeUserMetadataKey].(string); ok {
		_ = json.Unmarshal([]byte(v), &p.UserMetadata)
	}
	return p
}

// filterToPinecone pushes down only top-level equality conditions;
// ordered comparisons and user_metadata paths are re-checked by the
// caller against the fetched results.
func filterToPinecone(filter Filter) map[string]any {
	out := make(map[string]any)
	for _, c := range filter.Conditions {
		if c.Op != OpEq && c.Op != "" {
			continue
		}
		if strings.HasPrefix(c.Path, "user_metadata.") {
			continue
		}
		out[c.Path] = c.Value
	}
	return out
}

var _ Index = (*PineconeIndex)(nil)
