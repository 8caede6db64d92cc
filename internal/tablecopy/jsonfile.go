package tablecopy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"go.uber.org/zap"

	"workshop-functions/internal/apperr"
)

// Export scans table and writes its items to w as an indented JSON array.
// Numbers stay JSON numbers; string and number sets become lists.
func (c *Copier) Export(ctx context.Context, table string, w io.Writer) (int, error) {
	docs := make([]map[string]any, 0)
	err := c.ScanAll(ctx, table, func(items []Item) error {
		for _, it := range items {
			doc, err := ItemToJSON(it)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(docs); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}
	c.logger.Info("export finished", zap.String("table", table), zap.Int("items", len(docs)))
	return len(docs), nil
}

// Import reads a JSON array of objects from r and batch-puts them into table.
func (c *Copier) Import(ctx context.Context, table string, r io.Reader) (int, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var docs []map[string]any
	if err := dec.Decode(&docs); err != nil {
		return 0, apperr.Data("decode import file", err)
	}

	items := make([]Item, 0, len(docs))
	for i, doc := range docs {
		it, err := JSONToItem(doc)
		if err != nil {
			return 0, apperr.Data(fmt.Sprintf("item %d", i), err)
		}
		items = append(items, it)
	}

	if c.DryRun {
		return 0, nil
	}
	n, err := c.WriteAll(ctx, table, items)
	if err != nil {
		return n, err
	}
	c.logger.Info("import finished", zap.String("table", table), zap.Int("items", n))
	return n, nil
}

// ItemToJSON converts an item into plain JSON values.
func ItemToJSON(it Item) (map[string]any, error) {
	var doc map[string]any
	err := attributevalue.UnmarshalMapWithOptions(it, &doc, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return nil, apperr.Data("decode item", err)
	}
	return toJSONNumbers(doc).(map[string]any), nil
}

// JSONToItem converts a decoded JSON object (decoded with UseNumber) into an item.
func JSONToItem(doc map[string]any) (Item, error) {
	it, err := attributevalue.MarshalMap(toAttrNumbers(doc))
	if err != nil {
		return nil, err
	}
	return it, nil
}

func toJSONNumbers(v any) any {
	switch t := v.(type) {
	case attributevalue.Number:
		return json.Number(t)
	case []attributevalue.Number:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = json.Number(n)
		}
		return out
	case map[string]any:
		for k, e := range t {
			t[k] = toJSONNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = toJSONNumbers(e)
		}
		return t
	default:
		return v
	}
}

func toAttrNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		return attributevalue.Number(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = toAttrNumbers(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toAttrNumbers(e)
		}
		return out
	default:
		return v
	}
}

// MarshalResult renders a Result for CLI output.
func MarshalResult(r Result) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	_ = enc.Encode(r)
	return buf.String()
}
