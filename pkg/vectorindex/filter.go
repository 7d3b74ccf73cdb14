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

import "strings"

func (c Condition) match(p Payload) bool {
	actual, ok := fieldValue(p, c.Path)
	if !ok {
		return false
	}

	switch c.Op {
	case OpEq, "":
		return compareEqual(actual, c.Value)
	case OpGte, OpLte, OpGt, OpLt:
		return compareOrdered(actual, c.Value, c.Op)
	default:
		return false
	}
}

func fieldValue(p Payload, path string) (any, bool) {
	switch path {
	case "document_id":
		return p.DocumentID, true
	case "chunk_id":
		return p.ChunkID, true
	case "source":
		return p.Source, true
	case "page":
		return p.Page, true
	case "chunk_index":
		return p.ChunkIndex, true
	case "created_at":
		return p.CreatedAt, true
	default:
		if rest, ok := strings.CutPrefix(path, "user_metadata."); ok {
			v, ok := p.UserMetadata[rest]
			return v, ok
		}
		return nil, false
	}
}

func compareEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

func compareOrdered(a, b any, op Op) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case OpGte:
		return af >= bf
	case OpLte:
		return af <= bf
	case OpGt:
		return af > bf
	case OpLt:
		return af < bf
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
