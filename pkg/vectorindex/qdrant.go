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

	"github.com/qdrant/go-client/qdrant"

	"github.com/ragwell/corpus/pkg/apperror"
)

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantIndex implements Index against a Qdrant server over gRPC.
type QdrantIndex struct {
	client *qdrant.Client
}

// NewQdrantIndex dials a Qdrant server per cfg.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, fmt.Sprintf("connect to qdrant at %s:%d", cfg.Host, cfg.Port), err)
	}

	return &QdrantIndex{client: client}, nil
}

func (idx *QdrantIndex) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	exists, err := idx.client.CollectionExists(ctx, collection)
	if err != nil {
		return apperror.Wrap(apperror.ExternalService, "check qdrant collection", err)
	}
	if exists {
		return nil
	}

	err = idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return apperror.Wrap(apperror.ExternalService, "create qdrant collection", err)
	}
	return nil
}

func (idx *QdrantIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := payloadToQdrant(p.Payload)
		if err != nil {
			return apperror.Wrap(apperror.Internal, "convert payload", err)
		}
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}

	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
	})
	if err != nil {
		return apperror.Wrap(apperror.ExternalService, "upsert qdrant points", err)
	}
	return nil
}

func (idx *QdrantIndex) Search(ctx context.Context, collection string, query []float32, k int, scoreThreshold float32, filter Filter) ([]SearchResult, error) {
	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if len(filter.Conditions) > 0 {
		req.Filter = buildQdrantFilter(filter)
	}
	if scoreThreshold > 0 {
		// Qdrant compares its raw cosine score, so map the [0, 1]
		// threshold back onto [-1, 1].
		st := 2*scoreThreshold - 1
		req.ScoreThreshold = &st
	}

	points, err := idx.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, "search qdrant points", err)
	}

	out := make([]SearchResult, 0, len(points.Result))
	for _, sp := range points.Result {
		payload, err := payloadFromQdrant(sp.Payload)
		if err != nil {
			return nil, apperror.Wrap(apperror.Internal, "parse qdrant payload", err)
		}
		if !filter.Match(payload) {
			continue
		}
		out = append(out, SearchResult{
			ID:      pointIDString(sp.Id),
			Score:   normalizeQdrantScore(sp.Score),
			Vector:  vectorFromQdrant(sp.Vectors),
			Payload: payload,
		})
	}
	return out, nil
}

func (idx *QdrantIndex) Scroll(ctx context.Context, collection string, filter Filter, pageSize int, offset string) (ScrollPage, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          ptrUint32(uint32(pageSize)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if len(filter.Conditions) > 0 {
		req.Filter = buildQdrantFilter(filter)
	}
	if offset != "" {
		req.Offset = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: offset}}
	}

	resp, err := idx.client.GetPointsClient().Scroll(ctx, req)
	if err != nil {
		return ScrollPage{}, apperror.Wrap(apperror.ExternalService, "scroll qdrant points", err)
	}

	page := ScrollPage{}
	for _, rp := range resp.Result {
		payload, err := payloadFromQdrant(rp.Payload)
		if err != nil {
			return ScrollPage{}, apperror.Wrap(apperror.Internal, "parse qdrant payload", err)
		}
		if !filter.Match(payload) {
			continue
		}
		page.Points = append(page.Points, Point{
			ID:      pointIDString(rp.Id),
			Vector:  vectorFromQdrant(rp.Vectors),
			Payload: payload,
		})
	}
	if resp.NextPageOffset != nil {
		page.NextOffset = pointIDString(resp.NextPageOffset)
	}
	return page, nil
}

func (idx *QdrantIndex) Get(ctx context.Context, collection string, ids []string) ([]Point, error) {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
	}

	resp, err := idx.client.GetPointsClient().Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.ExternalService, "get qdrant points", err)
	}

	out := make([]Point, 0, len(resp.Result))
	for _, rp := range resp.Result {
		payload, err := payloadFromQdrant(rp.Payload)
		if err != nil {
			return nil, apperror.Wrap(apperror.Internal, "parse qdrant payload", err)
		}
		out = append(out, Point{ID: pointIDString(rp.Id), Vector: vectorFromQdrant(rp.Vectors), Payload: payload})
	}
	return out, nil
}

func (idx *QdrantIndex) Delete(ctx context.Context, collection string, ids []string) error {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
	}

	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return apperror.Wrap(apperror.ExternalService, "delete qdrant points", err)
	}
	return nil
}

func (idx *QdrantIndex) Close() error {
	return idx.client.Close()
}

func ptrUint32(v uint32) *uint32 { return &v }

func pointIDString(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

func vectorFromQdrant(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if v := vectors.GetVector(); v != nil {
		if dense, ok := v.Vector.(*qdrant.VectorOutput_Dense); ok && dense.Dense != nil {
			return dense.Dense.Data
		}
	}
	return nil
}

// normalizeQdrantScore maps Qdrant's raw cosine score (already in
// [-1, 1] for normalized vectors) onto the spec's [0, 1] convention.
func normalizeQdrantScore(score float32) float32 {
	n := (score + 1) / 2
	if n < 0 {
		n = 0
	}
	if n > 1 {
		n = 1
	}
	return n
}

// userMetadataKey marks an encoded payload field as belonging under
// user_metadata rather than being a top-level payload attribute.
const userMetadataKey = "_user_metadata"

func payloadToQdrant(p Payload) (map[string]*qdrant.Value, error) {
	out := make(map[string]*qdrant.Value)
	fields := map[string]any{
		"document_id": p.DocumentID,
		"chunk_id":    p.ChunkID,
		"source":      p.Source,
		"page":        int64(p.Page),
		"chunk_index": int64(p.ChunkIndex),
		"created_at":  p.CreatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		val, err := qdrant.NewValue(v)
		if err != nil {
			return nil, fmt.Errorf("convert field %s: %w", k, err)
		}
		out[k] = val
	}

	if len(p.UserMetadata) > 0 {
		raw, err := json.Marshal(p.UserMetadata)
		if err != nil {
			return nil, fmt.Errorf("marshal user_metadata: %w", err)
		}
		val, err := qdrant.NewValue(string(raw))
		if err != nil {
			return nil, fmt.Errorf("convert user_metadata: %w", err)
		}
		out[userMetadataKey] = val
	}

	return out, nil
}

func payloadFromQdrant(payload map[string]*qdrant.Value) (Payload, error) {
	p := Payload{UserMetadata: make(map[string]any)}

	if v, ok := payload["document_id"]; ok {
		p.DocumentID = v.GetStringValue()
	}
	if v, ok := payload["chunk_id"]; ok {
		p.ChunkID = v.GetStringValue()
	}
	if v, ok := payload["source"]; ok {
		p.Source = v.GetStringValue()
	}
	if v, ok := payload["page"]; ok {
		p.Page = int(v.GetIntegerValue())
	}
	if v, ok := payload["chunk_index"]; ok {
		p.ChunkIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload["created_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v.GetStringValue()); err == nil {
			p.CreatedAt = t
		}
	}
	if v, ok := payload[userMetadataKey]; ok {
		if err := json.Unmarshal([]byte(v.GetStringValue()), &p.UserMetadata); err != nil {
			return Payload{}, fmt.Errorf("unmarshal user_metadata: %w", err)
		}
	}

	return p, nil
}

// buildQdrantFilter pushes down only the subset Qdrant can express
// server-side as an optimization; Search/Scroll re-run filter.Match on
// every returned payload afterward, so an unpushed or only-partially-
// pushed condition still narrows the final result correctly the way
// chromem.go and pinecone.go do.
func buildQdrantFilter(filter Filter) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter.Conditions))
	for _, c := range filter.Conditions {
		key := c.Path
		if strings.HasPrefix(key, "user_metadata.") {
			// Qdrant can't filter inside our JSON-encoded blob; nested
			// user_metadata filters are applied entirely by filter.Match.
			continue
		}

		switch c.Op {
		case OpEq, "":
			switch v := c.Value.(type) {
			case int:
				conditions = append(conditions, qdrant.NewMatchInt(key, int64(v)))
			case int64:
				conditions = append(conditions, qdrant.NewMatchInt(key, v))
			case bool:
				conditions = append(conditions, qdrant.NewMatchBool(key, v))
			default:
				conditions = append(conditions, qdrant.NewMatchKeyword(key, fmt.Sprintf("%v", v)))
			}
		case OpGte, OpLte, OpGt, OpLt:
			if r, ok := qdrantRange(c); ok {
				conditions = append(conditions, qdrant.NewRange(key, r))
			}
			// Non-numeric range values can't be expressed as a Qdrant
			// Range; filter.Match still enforces them client-side.
		}
	}
	return &qdrant.Filter{Must: conditions}
}

// qdrantRange converts a single ordered-comparison Condition into a
// Qdrant Range bound, for numeric values only.
func qdrantRange(c Condition) (*qdrant.Range, bool) {
	f, ok := toFloat64(c.Value)
	if !ok {
		return nil, false
	}
	r := &qdrant.Range{}
	switch c.Op {
	case OpGte:
		r.Gte = &f
	case OpLte:
		r.Lte = &f
	case OpGt:
		r.Gt = &f
	case OpLt:
		r.Lt = &f
	}
	return r, true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

var _ Index = (*QdrantIndex)(nil)
