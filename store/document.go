package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ドキュメントはJSONのオブジェクトとして扱う。
// 数値は全てfloat64に正規化されるため、Guardの比較もJSON往復後の値で行う。

func decodeDocument(raw []byte) (map[string]any, error) {
	doc := map[string]any{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return doc, nil
}

// encodeValue はSet/SetIfに渡された値をJSONにします
func encodeValue(value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%w: invalid json value", ErrCorrupt)
		}
		return raw, nil
	}
	return json.Marshal(value)
}

func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, seg := range splitPath(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// applyFields はパス指定の部分更新を doc に適用します。nil の値は削除です。
func applyFields(doc map[string]any, fields map[string]any) error {
	paths := make([]string, 0, len(fields))
	for p := range fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		segs := splitPath(p)
		if len(segs) == 0 || segs[0] == "" {
			return fmt.Errorf("%w: empty field path", ErrCorrupt)
		}
		parent := doc
		for _, seg := range segs[:len(segs)-1] {
			next, ok := parent[seg].(map[string]any)
			if !ok {
				if fields[p] == nil {
					parent = nil
					break
				}
				next = map[string]any{}
				parent[seg] = next
			}
			parent = next
		}
		leaf := segs[len(segs)-1]
		if fields[p] == nil {
			if parent != nil {
				delete(parent, leaf)
			}
			continue
		}
		v, err := normalize(fields[p])
		if err != nil {
			return fmt.Errorf("%w: field %s: %v", ErrCorrupt, p, err)
		}
		parent[leaf] = v
	}
	return nil
}

// checkGuard は現在のドキュメントが guard を満たすか確認します
func checkGuard(doc map[string]any, exists bool, guard Guard) error {
	for path, want := range guard {
		var got any
		var ok bool
		switch {
		case !exists:
		case path == "":
			got, ok = doc, true
		default:
			got, ok = lookup(doc, path)
		}

		if want == nil {
			if ok {
				return ErrConditionFailed
			}
			continue
		}
		if !ok {
			return ErrConditionFailed
		}
		wantN, err := normalize(want)
		if err != nil {
			return fmt.Errorf("%w: guard %s: %v", ErrCorrupt, path, err)
		}
		if !reflect.DeepEqual(got, wantN) {
			return ErrConditionFailed
		}
	}
	return nil
}

// mutation は一つの書き込みの結果です
type mutation struct {
	value  []byte
	remove bool
	noop   bool
}

func planSet(cur []byte, exists bool, guard Guard, value any) (mutation, error) {
	if len(guard) > 0 {
		doc, err := decodeDocument(cur)
		if err != nil {
			return mutation{}, err
		}
		if err := checkGuard(doc, exists, guard); err != nil {
			return mutation{}, err
		}
	}
	raw, err := encodeValue(value)
	if err != nil {
		return mutation{}, err
	}
	return mutation{value: raw}, nil
}

func planUpdate(cur []byte, exists bool, guard Guard, fields map[string]any) (mutation, error) {
	if !exists {
		return mutation{}, ErrNotFound
	}
	doc, err := decodeDocument(cur)
	if err != nil {
		return mutation{}, err
	}
	if err := checkGuard(doc, exists, guard); err != nil {
		return mutation{}, err
	}
	if err := applyFields(doc, fields); err != nil {
		return mutation{}, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return mutation{}, err
	}
	return mutation{value: raw}, nil
}

func planRemove(cur []byte, exists bool, guard Guard) (mutation, error) {
	if len(guard) > 0 {
		doc, err := decodeDocument(cur)
		if err != nil {
			return mutation{}, err
		}
		if err := checkGuard(doc, exists, guard); err != nil {
			return mutation{}, err
		}
	}
	if !exists {
		return mutation{noop: true}, nil
	}
	return mutation{remove: true}, nil
}
