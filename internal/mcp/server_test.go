package mcp_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/sonoscribe/internal/dictionary"
	"github.com/MrWong99/sonoscribe/internal/mcp"
	"github.com/MrWong99/sonoscribe/internal/structure"
	"github.com/MrWong99/sonoscribe/internal/transcript"
)

const testDict = `
terms:
  - key: rt_lobe
    canonical: right lobe
    aliases: [rt lobe]
  - key: thy_nod
    canonical: thyroid nodule
    aliases: [thyroidnodule]
categories:
  location: [rt_lobe]
  lesion: [thy_nod]
`

func newVocabulary(t *testing.T) *mcp.Vocabulary {
	t.Helper()
	d, err := dictionary.LoadFromReader(strings.NewReader(testDict))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	c, err := transcript.NewCorrector(d)
	if err != nil {
		t.Fatalf("NewCorrector: %v", err)
	}
	v := &mcp.Vocabulary{}
	v.Store(c, d)
	return v
}

// connect starts the server on an in-memory transport and returns a client
// session connected to it.
func connect(t *testing.T, v *mcp.Vocabulary) *mcpsdk.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	ct, st := mcpsdk.NewInMemoryTransports()
	ss, err := mcp.NewServer(v, "test").Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any, out any) *mcpsdk.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if res.IsError || out == nil {
		return res
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if err := json.Unmarshal([]byte(sb.String()), out); err != nil {
		t.Fatalf("decode %s result %q: %v", name, sb.String(), err)
	}
	return res
}

func TestTools_Listed(t *testing.T) {
	t.Parallel()
	cs := connect(t, newVocabulary(t))

	var names []string
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("Tools: %v", err)
		}
		names = append(names, tool.Name)
	}
	want := map[string]bool{"correct_transcript": true, "extract_report": true, "lookup_term": true}
	if len(names) != len(want) {
		t.Fatalf("tools = %v", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected tool %q", n)
		}
	}
}

func TestCorrectTranscript(t *testing.T) {
	t.Parallel()
	cs := connect(t, newVocabulary(t))

	var res transcript.Result
	call(t, cs, "correct_transcript", map[string]any{"text": "rt lobe thyroidnodule"}, &res)
	if res.Corrected != "right lobe thyroid nodule" {
		t.Errorf("Corrected = %q", res.Corrected)
	}
	if len(res.Corrections) != 2 {
		t.Errorf("Corrections = %+v", res.Corrections)
	}
}

func TestExtractReport(t *testing.T) {
	t.Parallel()
	cs := connect(t, newVocabulary(t))

	var rec structure.Record
	call(t, cs, "extract_report", map[string]any{"text": "rt lobe thyroidnodule", "correct": true}, &rec)
	if rec.Location == nil || *rec.Location != "right lobe" {
		t.Errorf("Location = %v", rec.Location)
	}
	if rec.Lesion == nil || *rec.Lesion != "thyroid nodule" {
		t.Errorf("Lesion = %v", rec.Lesion)
	}
	if rec.Notes != structure.Notes {
		t.Errorf("Notes = %q", rec.Notes)
	}

	res := call(t, cs, "extract_report", map[string]any{"text": "   "}, nil)
	if !res.IsError {
		t.Error("empty text should be a tool error")
	}
}

func TestLookupTerm(t *testing.T) {
	t.Parallel()
	cs := connect(t, newVocabulary(t))

	tests := []struct {
		query     string
		wantFound bool
		wantKey   string
	}{
		{"RT LOBE", true, "rt_lobe"},
		{"thy_nod", true, "thy_nod"},
		{"thyroid nodule", true, "thy_nod"},
		{"spleen", false, ""},
	}
	for _, tt := range tests {
		var out mcp.LookupOutput
		call(t, cs, "lookup_term", map[string]any{"query": tt.query}, &out)
		if out.Found != tt.wantFound || out.Key != tt.wantKey {
			t.Errorf("lookup(%q) = %+v", tt.query, out)
		}
		if tt.wantKey == "rt_lobe" && (len(out.Categories) != 1 || out.Categories[0] != "location") {
			t.Errorf("categories = %v", out.Categories)
		}
	}
}

func TestNoDictionary(t *testing.T) {
	t.Parallel()
	cs := connect(t, &mcp.Vocabulary{})

	res := call(t, cs, "correct_transcript", map[string]any{"text": "x"}, nil)
	if !res.IsError {
		t.Error("expected tool error without a dictionary")
	}
}
