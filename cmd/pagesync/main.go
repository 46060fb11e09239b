package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/agentworkforce/pagesync/internal/diff"
	"github.com/agentworkforce/pagesync/internal/pagesync"
	"github.com/agentworkforce/pagesync/internal/state"
	"github.com/agentworkforce/pagesync/internal/watch"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	watchMode := flag.Bool("watch", false, "keep running and re-sync on file changes")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: pagesync [flags] <page-id> <file>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	pageID, sourcePath := flag.Arg(0), flag.Arg(1)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	states, err := state.BuildBackendFromDSN(cfg.StateDSN)
	if err != nil {
		log.Fatalf("failed to initialize state backend: %v", err)
	}

	client, err := pagesync.New(pagesync.Options{
		Config: cfg,
		Logger: log.Default(),
		States: states,
	})
	if err != nil {
		log.Fatalf("failed to build client: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := syncOnce(ctx, client, pageID, sourcePath); err != nil {
		log.Fatalf("sync failed: %v", err)
	}
	if !*watchMode {
		return
	}

	if err := runWatch(ctx, client, pageID, sourcePath); err != nil {
		log.Fatalf("watch failed: %v", err)
	}
}

func loadConfig(path string) (pagesync.Config, error) {
	cfg := pagesync.DefaultConfig()
	if path != "" {
		var err error
		cfg, err = pagesync.LoadConfigFile(path)
		if err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func syncOnce(ctx context.Context, client *pagesync.Client, pageID, sourcePath string) error {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return err
	}
	desired := blocksFromText(string(data))
	started := time.Now()
	res, err := client.SyncPage(ctx, pageID, desired)
	if err != nil {
		if res != nil {
			log.Printf("sync of %s failed after partial apply: kept=%d updated=%d inserted=%d deleted=%d replaced=%d",
				pageID, res.Kept, res.Updated, res.Inserted, res.Deleted, res.Replaced)
		}
		return err
	}
	log.Printf("synced %s in %s: strategy=%s kept=%d updated=%d inserted=%d deleted=%d replaced=%d uploaded=%d",
		pageID, time.Since(started).Round(time.Millisecond), res.Strategy,
		res.Kept, res.Updated, res.Inserted, res.Deleted, res.Replaced, res.Uploaded)
	return nil
}

func runWatch(ctx context.Context, client *pagesync.Client, pageID, sourcePath string) error {
	watcher, err := watch.NewWatcher(watch.Options{
		Extensions: []string{filepath.Ext(sourcePath)},
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(filepath.Dir(sourcePath)); err != nil {
		return err
	}
	defer watcher.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	absSource, err := filepath.Abs(sourcePath)
	if err != nil {
		absSource = sourcePath
	}
	log.Printf("watching %s", sourcePath)
	for {
		select {
		case change, ok := <-watcher.Changes():
			if !ok {
				return nil
			}
			changed, err := filepath.Abs(change.Path)
			if err != nil {
				changed = change.Path
			}
			if changed != absSource {
				continue
			}
			if err := syncOnce(ctx, client, pageID, sourcePath); err != nil {
				log.Printf("re-sync failed: %v", err)
			}
		case err, ok := <-watcher.Errors():
			if ok && err != nil {
				log.Printf("watch error: %v", err)
			}
		case <-stop:
			return nil
		}
	}
}

// blocksFromText converts a markdown-flavored document into desired blocks.
// It covers the constructs pagesync diffs on; anything unrecognized becomes
// a paragraph.
func blocksFromText(text string) []*diff.Block {
	var blocks []*diff.Block
	lines := strings.Split(text, "\n")

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "```"):
			language := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			var body []string
			for i++; i < len(lines); i++ {
				if strings.TrimSpace(lines[i]) == "```" {
					break
				}
				body = append(body, lines[i])
			}
			blocks = append(blocks, codeBlock(strings.Join(body, "\n"), language))
		case strings.HasPrefix(trimmed, "### "):
			blocks = append(blocks, textBlock("heading_3", strings.TrimPrefix(trimmed, "### ")))
		case strings.HasPrefix(trimmed, "## "):
			blocks = append(blocks, textBlock("heading_2", strings.TrimPrefix(trimmed, "## ")))
		case strings.HasPrefix(trimmed, "# "):
			blocks = append(blocks, textBlock("heading_1", strings.TrimPrefix(trimmed, "# ")))
		case strings.HasPrefix(trimmed, "- [ ] "), strings.HasPrefix(trimmed, "- [x] "):
			checked := strings.HasPrefix(trimmed, "- [x] ")
			blocks = append(blocks, todoBlock(trimmed[len("- [x] "):], checked))
		case strings.HasPrefix(trimmed, "- "):
			blocks = append(blocks, textBlock("bulleted_list_item", strings.TrimPrefix(trimmed, "- ")))
		case strings.HasPrefix(trimmed, "> "):
			blocks = append(blocks, textBlock("quote", strings.TrimPrefix(trimmed, "> ")))
		case strings.HasPrefix(trimmed, "![") && strings.Contains(trimmed, "]("):
			if src := imageSource(trimmed); src != "" {
				blocks = append(blocks, &diff.Block{
					Kind:       "image",
					Attachment: &diff.AttachmentRef{Source: src},
				})
				continue
			}
			blocks = append(blocks, textBlock("paragraph", trimmed))
		default:
			blocks = append(blocks, textBlock("paragraph", trimmed))
		}
	}
	return blocks
}

func imageSource(line string) string {
	open := strings.Index(line, "](")
	if open < 0 {
		return ""
	}
	rest := line[open+2:]
	end := strings.Index(rest, ")")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func richText(content string) []any {
	return []any{map[string]any{
		"type": "text",
		"text": map[string]any{"content": content},
	}}
}

func blockPayload(kind string, typeData map[string]any) []byte {
	payload, _ := json.Marshal(map[string]any{"type": kind, kind: typeData})
	return payload
}

func textBlock(kind, text string) *diff.Block {
	return &diff.Block{
		Kind:    kind,
		Text:    text,
		Payload: blockPayload(kind, map[string]any{"rich_text": richText(text)}),
	}
}

func codeBlock(text, language string) *diff.Block {
	if language == "" {
		language = "plain text"
	}
	return &diff.Block{
		Kind:  "code",
		Text:  text,
		Attrs: map[string]string{"language": language},
		Payload: blockPayload("code", map[string]any{
			"language":  language,
			"rich_text": richText(text),
		}),
	}
}

func todoBlock(text string, checked bool) *diff.Block {
	return &diff.Block{
		Kind:  "to_do",
		Text:  text,
		Attrs: map[string]string{"checked": fmt.Sprint(checked)},
		Payload: blockPayload("to_do", map[string]any{
			"checked":   checked,
			"rich_text": richText(text),
		}),
	}
}
