package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gregpriday/memory-mcp/internal/files"
	"github.com/gregpriday/memory-mcp/internal/llm"
	"github.com/gregpriday/memory-mcp/pkg/types"
)

// Per-file limits for the large-file preprocessing path.
const (
	maxMemoriesPerFile = 50
	maxRelatedIDs      = 5
)

// Decision actions.
const (
	ActionStored       = "STORED"
	ActionDeduplicated = "DEDUPLICATED"
	ActionRejected     = "REJECTED"
)

// MemorizeRequest is one memorize invocation.
type MemorizeRequest struct {
	Input         string
	Files         []string
	Index         string
	Metadata      map[string]interface{}
	Force         bool
	ProjectPrompt string
}

// Decision is the reconciled outcome of a memorize request.
type Decision struct {
	Action     string   `json:"action"`
	Reason     string   `json:"reason,omitempty"`
	RelatedIDs []string `json:"relatedIds,omitempty"`
}

// MemorizeResult reports what was actually stored.
type MemorizeResult struct {
	Status      string    `json:"status"`
	Index       string    `json:"index"`
	StoredCount int       `json:"storedCount"`
	MemoryIDs   []string  `json:"memoryIds,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Decision    *Decision `json:"decision,omitempty"`
}

// Memorize ingests input text and files into the index. Large files
// are chunked and analyzed in-process; everything else goes through
// the tool loop. The model's self-reported decision is reconciled
// against repository side effects before it is returned.
func (a *Agent) Memorize(ctx context.Context, req MemorizeRequest) (*MemorizeResult, error) {
	rc := newRequestContext(req.Index, ModeNormal)
	rc.ForceValidationBypass = req.Force

	smallFiles, err := a.preprocessFiles(ctx, rc, req.Files, req.Metadata)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"input": req.Input,
	}
	if len(smallFiles) > 0 {
		payload["files"] = smallFiles
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}
	if req.Force {
		payload["force"] = true
	}

	prompt := llm.ComposePrompt(llm.MemorizeSystemPrompt, req.ProjectPrompt)
	final, err := a.runLoop(ctx, rc, prompt, payload)
	if err != nil {
		return nil, err
	}

	decision := a.reconcile(rc, final)
	result := &MemorizeResult{
		Status:      "ok",
		Index:       req.Index,
		StoredCount: len(rc.StoredMemoryIDs),
		MemoryIDs:   rc.StoredMemoryIDs,
		Decision:    decision,
		Notes:       composeNotes(decision, rc.ValidationMessages),
	}
	return result, nil
}

// llmMemorizeReport is the shape the memorize prompt asks for.
type llmMemorizeReport struct {
	Memories []struct {
		ID         string   `json:"id"`
		Status     string   `json:"status"`
		Reason     string   `json:"reason"`
		RelatedIDs []string `json:"relatedIds"`
	} `json:"memories"`
}

// reconcile squares the model's self-report with what the operation
// log says actually happened. Stored memories win every argument.
func (a *Agent) reconcile(rc *RequestContext, final string) *Decision {
	var report llmMemorizeReport
	parseErr := llm.DecodeObject(final, &report)

	var claimedStored bool
	var reason string
	var relatedIDs []string
	for _, m := range report.Memories {
		if strings.EqualFold(m.Status, ActionStored) {
			claimedStored = true
		}
		if reason == "" && m.Reason != "" {
			reason = m.Reason
		}
		relatedIDs = append(relatedIDs, m.RelatedIDs...)
	}

	storedCount := len(rc.StoredMemoryIDs)
	switch {
	case storedCount > 0:
		if !claimedStored && parseErr == nil {
			a.log.Debug("model under-reported stores, overriding to STORED",
				zap.Int("stored", storedCount))
		}
		return &Decision{Action: ActionStored, Reason: reason}
	case claimedStored:
		// Claimed STORED with nothing written. If searches surfaced
		// overlapping memories, call it a dedup against those.
		if found := rc.searchResultIDs(); len(found) > 0 {
			return &Decision{
				Action:     ActionDeduplicated,
				Reason:     "similar memories already exist",
				RelatedIDs: capIDs(found, maxRelatedIDs),
			}
		}
		return &Decision{Action: ActionRejected, Reason: "nothing was stored"}
	default:
		d := &Decision{Action: ActionRejected, Reason: reason}
		if d.Reason == "" {
			d.Reason = "no durable information found"
		}
		if len(relatedIDs) > 0 {
			d.Action = ActionDeduplicated
			d.RelatedIDs = capIDs(relatedIDs, maxRelatedIDs)
		}
		return d
	}
}

func composeNotes(d *Decision, validationMessages []string) string {
	var b strings.Builder
	b.WriteString(d.Action)
	if d.Reason != "" {
		b.WriteString(": ")
		b.WriteString(d.Reason)
	}
	for _, msg := range validationMessages {
		b.WriteString("\n")
		b.WriteString(msg)
	}
	return b.String()
}

func capIDs(ids []string, max int) []string {
	if len(ids) > max {
		return ids[:max]
	}
	return ids
}

// preprocessFiles ingests large files directly (chunk, analyze, upsert)
// and returns the remaining small paths for the model to read itself.
func (a *Agent) preprocessFiles(ctx context.Context, rc *RequestContext, paths []string, defaults map[string]interface{}) ([]string, error) {
	if len(paths) == 0 || a.files == nil {
		return paths, nil
	}

	var small []string
	for _, path := range paths {
		large, err := a.files.IsLarge(path)
		if err != nil {
			return nil, fmt.Errorf("agent: cannot access file %q: %w", path, err)
		}
		if !large {
			small = append(small, path)
			continue
		}
		if err := a.ingestLargeFile(ctx, rc, path, defaults); err != nil {
			return nil, err
		}
	}
	return small, nil
}

func (a *Agent) ingestLargeFile(ctx context.Context, rc *RequestContext, path string, defaults map[string]interface{}) error {
	content, err := a.files.Read(path)
	if err != nil {
		return fmt.Errorf("agent: failed to read file %q: %w", path, err)
	}

	chunks := files.NewChunker().Split(content)
	a.log.Info("ingesting large file",
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
	)

	var items []*types.Memory
	for _, chunk := range chunks {
		if len(items) >= maxMemoriesPerFile {
			break
		}
		analysis, err := a.analysis.CompleteAnalysis(ctx, llm.FileExtractionPrompt, chunk, llm.DefaultAnalysisMaxTokens)
		if err != nil {
			return fmt.Errorf("agent: chunk analysis failed for %q: %w", path, err)
		}

		var extracted struct {
			Memories []struct {
				Text     string                 `json:"text"`
				Metadata map[string]interface{} `json:"metadata"`
			} `json:"memories"`
		}
		if err := llm.DecodeObject(analysis, &extracted); err != nil {
			a.log.Warn("unparseable chunk analysis, skipping chunk",
				zap.String("path", path), zap.Error(err))
			continue
		}

		for _, m := range extracted.Memories {
			if len(items) >= maxMemoriesPerFile {
				break
			}
			if strings.TrimSpace(m.Text) == "" {
				continue
			}
			md := mergeFileMetadata(defaults, m.Metadata, path)
			items = append(items, &types.Memory{
				Content:  types.Content{Text: m.Text},
				Metadata: md,
			})
		}
	}
	if len(items) == 0 {
		return nil
	}

	ids, err := a.repo.UpsertMemories(ctx, rc.Index, items, nil)
	if err != nil {
		return fmt.Errorf("agent: failed to store memories from %q: %w", path, err)
	}
	rc.StoredMemoryIDs = append(rc.StoredMemoryIDs, ids...)
	rc.logTool(LogEntry{
		Tool:          "ingest_file",
		ArgsSummary:   path,
		ResultSummary: fmt.Sprintf("stored %d from %d chunks", len(ids), len(chunks)),
		MemoriesCount: len(ids),
		StoredIDs:     ids,
	})
	return nil
}

// mergeFileMetadata normalizes source fields onto extracted metadata.
// Caller defaults fill gaps; source and sourcePath always reflect the
// file.
func mergeFileMetadata(defaults, extracted map[string]interface{}, path string) map[string]interface{} {
	md := make(map[string]interface{}, len(defaults)+len(extracted)+2)
	for k, v := range defaults {
		md[k] = v
	}
	for k, v := range extracted {
		md[k] = v
	}
	md["source"] = string(types.SourceFile)
	md["sourcePath"] = path
	return md
}
