package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/ragtriever/internal/indexer"
	"github.com/hyperjump/ragtriever/internal/models"
)

func testAnswer() *models.Answer {
	return &models.Answer{
		Text: "Restart the agent.",
		Matches: []*models.MatchResult{{
			Chunk:        &models.Chunk{DocumentName: "agent.md", Position: 3, Content: "To restart the agent run agentctl restart."},
			Score:        0.9,
			KeywordScore: 0.8,
		}},
		Documents: []string{"agent.md"},
		QueryTime: 42,
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, testAnswer(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.Answer
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Text != "Restart the agent." || len(decoded.Matches) != 1 {
		t.Errorf("decoded answer: %+v", decoded)
	}
	if decoded.Matches[0].Chunk.DocumentName != "agent.md" {
		t.Errorf("decoded match: %+v", decoded.Matches[0].Chunk)
	}
}

func TestWriteAnswer_text(t *testing.T) {
	ans := testAnswer()
	ans.Cached = true
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, ans, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Restart the agent.", "cached", "1 matches from 1 documents", "42ms", "agent.md #3", "agentctl restart"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteDocuments(t *testing.T) {
	docs := []*models.Document{{ID: "d1", Name: "faq.md", Type: "Documentation", ChunkCount: 4, CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)}}
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, docs, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"d1", "faq.md", "4 chunks", "2024-05-01 09:30", "1 documents"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("text output missing %q:\n%s", sub, buf.String())
		}
	}

	buf.Reset()
	if err := WriteDocuments(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty JSON listing = %q", buf.String())
	}

	buf.Reset()
	_ = WriteDocuments(&buf, nil, OutputText)
	if !strings.Contains(buf.String(), "No documents.") {
		t.Errorf("empty text listing = %q", buf.String())
	}
}

func TestWriteReport(t *testing.T) {
	report := &indexer.Report{
		Ingested: []*models.Document{{ID: "d1", Name: "a.md", ChunkCount: 2}},
		Skipped:  []string{"b.md"},
		Failed:   map[string]string{"c.md": "embedder offline"},
	}
	var buf bytes.Buffer
	if err := WriteReport(&buf, report, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"ingested  a.md (2 chunks)", "skipped   b.md", "failed    c.md: embedder offline", "1 ingested, 1 skipped, 1 failed"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteStatus_text(t *testing.T) {
	status := map[string]interface{}{
		"documents": float64(3),
		"tenant":    "default_tenant",
		"classes":   map[string]interface{}{"Chunk_mock_8": float64(12)},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, status, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"documents:", " 3\n", "default_tenant", "Chunk_mock_8=12"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
	if strings.Index(out, "classes:") > strings.Index(out, "tenant:") {
		t.Error("keys should be sorted")
	}
}
