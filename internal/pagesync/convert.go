package pagesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/agentworkforce/pagesync/internal/diff"
	"github.com/agentworkforce/pagesync/internal/notion"
)

// Per-kind attributes that participate in signatures. Kinds not listed
// contribute no attributes beyond their text and shape.
var attrKeys = map[string][]string{
	"code":               {"language"},
	"to_do":              {"checked"},
	"heading_1":          {"is_toggleable", "color"},
	"heading_2":          {"is_toggleable", "color"},
	"heading_3":          {"is_toggleable", "color"},
	"callout":            {"icon", "color"},
	"quote":              {"color"},
	"toggle":             {"color"},
	"bulleted_list_item": {"color"},
	"numbered_list_item": {"color"},
	"bookmark":           {"url"},
	"embed":              {"url"},
	"equation":           {"expression"},
	"table":              {"has_column_header", "has_row_header", "table_width"},
}

// Attribute values the API reports even when the author never set them.
// Dropped during extraction so a fetched block hashes identically to a
// desired block that simply omits the attribute.
var defaultAttrValues = map[string]string{
	"color":         "default",
	"is_toggleable": "false",
}

// blockFromData converts one fetched block into the diff representation.
// The raw payload is not carried over: existing blocks are never re-sent.
func blockFromData(data notion.BlockData) (*diff.Block, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data.Raw, &envelope); err != nil {
		return nil, fmt.Errorf("block %s: %w", data.ID, err)
	}

	typeData := map[string]any{}
	if raw, ok := envelope[data.Kind]; ok {
		if err := json.Unmarshal(raw, &typeData); err != nil {
			return nil, fmt.Errorf("block %s (%s): %w", data.ID, data.Kind, err)
		}
	}

	return &diff.Block{
		ID:          data.ID,
		Kind:        data.Kind,
		Text:        plainText(typeData),
		Attrs:       extractAttrs(data.Kind, typeData),
		HasChildren: data.HasChildren,
	}, nil
}

func plainText(typeData map[string]any) string {
	richText, ok := typeData["rich_text"].([]any)
	if !ok {
		return ""
	}
	var text string
	for _, entry := range richText {
		rt, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if plain, ok := rt["plain_text"].(string); ok && plain != "" {
			text += plain
			continue
		}
		if inner, ok := rt["text"].(map[string]any); ok {
			if content, ok := inner["content"].(string); ok {
				text += content
			}
		}
	}
	return text
}

func extractAttrs(kind string, typeData map[string]any) map[string]string {
	attrs := make(map[string]string)
	for _, key := range attrKeys[kind] {
		value, ok := typeData[key]
		if !ok {
			continue
		}
		rendered := attrValue(value)
		if def, hasDefault := defaultAttrValues[key]; hasDefault && rendered == def {
			continue
		}
		attrs[key] = rendered
	}

	// Attachment blocks are compared by their source, not rich text.
	if kind == "image" || kind == "file" || kind == "video" || kind == "pdf" {
		sourceType, _ := typeData["type"].(string)
		attrs["source_type"] = sourceType
		if inner, ok := typeData[sourceType].(map[string]any); ok {
			if u, ok := inner["url"].(string); ok {
				attrs["url"] = u
			}
			if id, ok := inner["id"].(string); ok {
				attrs["upload_id"] = id
			}
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// attrValue renders an attribute deterministically. Maps are flattened with
// sorted keys so icon objects and similar hash stably.
func attrValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := ""
		for _, k := range keys {
			out += k + ":" + attrValue(v[k]) + ";"
		}
		return out
	default:
		return fmt.Sprint(v)
	}
}

// fetchTree loads the block tree under parentID down to maxDepth levels.
// Top-level etags feed the conflict snapshot; deeper levels are fetched for
// diffing only.
func fetchTree(ctx context.Context, api *notion.Client, parentID string, maxDepth int) ([]*diff.Block, map[string]string, error) {
	etags := make(map[string]string)
	blocks, err := fetchLevel(ctx, api, parentID, 0, maxDepth, etags)
	return blocks, etags, err
}

func fetchLevel(ctx context.Context, api *notion.Client, parentID string, depth, maxDepth int, etags map[string]string) ([]*diff.Block, error) {
	children, err := api.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	blocks := make([]*diff.Block, 0, len(children))
	for _, data := range children {
		block, err := blockFromData(data)
		if err != nil {
			return nil, err
		}
		if depth == 0 && data.LastEditedTime != "" {
			etags[data.ID] = data.LastEditedTime
		}
		if data.HasChildren && depth+1 < maxDepth {
			nested, err := fetchLevel(ctx, api, data.ID, depth+1, maxDepth, etags)
			if err != nil {
				return nil, err
			}
			block.Children = nested
			block.HasChildren = false
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}
