// Package mcp exposes the correction dictionary as Model Context Protocol
// tools, so an assistant editing a report can correct and structure text
// with the same vocabulary as the live dictation.
//
// Tools:
//   - correct_transcript: run the correction engine over text.
//   - extract_report: structure text into report fields, optionally
//     correcting it first.
//   - lookup_term: find a dictionary term by key, canonical form or alias.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/sonoscribe/internal/dictionary"
	"github.com/MrWong99/sonoscribe/internal/structure"
	"github.com/MrWong99/sonoscribe/internal/transcript"
)

// ErrNoDictionary is returned by every tool while no dictionary is loaded.
var ErrNoDictionary = errors.New("mcp: no dictionary loaded")

type snapshot struct {
	corrector *transcript.Corrector
	dict      *dictionary.Dictionary
	extractor *structure.Extractor
}

// Vocabulary is the dictionary and corrector pair served by the tools. It is
// swapped as a whole on reload and safe for concurrent use.
type Vocabulary struct {
	p atomic.Pointer[snapshot]
}

// Store replaces the served vocabulary.
func (v *Vocabulary) Store(c *transcript.Corrector, d *dictionary.Dictionary) {
	v.p.Store(&snapshot{corrector: c, dict: d, extractor: structure.NewExtractor(d)})
}

func (v *Vocabulary) load() (*snapshot, error) {
	s := v.p.Load()
	if s == nil {
		return nil, ErrNoDictionary
	}
	return s, nil
}

// CorrectInput is the argument of correct_transcript.
type CorrectInput struct {
	Text string `json:"text" jsonschema:"the raw dictation text"`
}

// ExtractInput is the argument of extract_report.
type ExtractInput struct {
	Text    string `json:"text" jsonschema:"the dictation text"`
	Correct bool   `json:"correct,omitempty" jsonschema:"correct each line before extracting"`
}

// LookupInput is the argument of lookup_term.
type LookupInput struct {
	Query string `json:"query" jsonschema:"a term key, canonical form or alias"`
}

// LookupOutput describes one dictionary term.
type LookupOutput struct {
	Found      bool     `json:"found"`
	Key        string   `json:"key,omitempty"`
	Canonical  string   `json:"canonical,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// NewServer returns an MCP server with the dictionary tools registered.
func NewServer(v *Vocabulary, version string) *mcpsdk.Server {
	s := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "sonoscribe", Version: version}, nil)

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "correct_transcript",
		Description: "Correct dictation text against the medical term dictionary.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in CorrectInput) (*mcpsdk.CallToolResult, transcript.Result, error) {
		snap, err := v.load()
		if err != nil {
			return nil, transcript.Result{}, err
		}
		res := snap.corrector.Correct(in.Text)
		return textResult(res), res, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "extract_report",
		Description: "Extract location, lesion and feature fields from dictation text.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in ExtractInput) (*mcpsdk.CallToolResult, structure.Record, error) {
		snap, err := v.load()
		if err != nil {
			return nil, structure.Record{}, err
		}
		text := strings.TrimSpace(in.Text)
		if text == "" {
			return nil, structure.Record{}, errors.New("no text to report")
		}
		if in.Correct {
			lines := strings.Split(text, "\n")
			for i, l := range lines {
				lines[i] = snap.corrector.Correct(l).Corrected
			}
			text = strings.Join(lines, "\n")
		}
		rec := snap.extractor.Extract(text)
		return textResult(rec), rec, nil
	})

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        "lookup_term",
		Description: "Look up a dictionary term by key, canonical form or alias.",
	}, func(ctx context.Context, _ *mcpsdk.CallToolRequest, in LookupInput) (*mcpsdk.CallToolResult, LookupOutput, error) {
		snap, err := v.load()
		if err != nil {
			return nil, LookupOutput{}, err
		}
		out := lookup(snap.dict, in.Query)
		return textResult(out), out, nil
	})

	return s
}

// Serve runs the tool server on t until ctx is cancelled or the client
// disconnects.
func Serve(ctx context.Context, v *Vocabulary, version string, t mcpsdk.Transport) error {
	slog.Info("mcp server starting")
	if err := NewServer(v, version).Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: serve: %w", err)
	}
	return nil
}

func lookup(d *dictionary.Dictionary, query string) LookupOutput {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return LookupOutput{}
	}
	for _, t := range d.Terms {
		if !matches(t, q) {
			continue
		}
		out := LookupOutput{Found: true, Key: t.Key, Canonical: t.Canonical, Aliases: t.Aliases}
		for _, c := range d.Categories {
			for _, k := range c.Keys {
				if k == t.Key {
					out.Categories = append(out.Categories, c.Name)
					break
				}
			}
		}
		return out
	}
	return LookupOutput{}
}

func matches(t dictionary.Term, q string) bool {
	if strings.ToLower(t.Key) == q {
		return true
	}
	for _, s := range t.Targets() {
		if strings.ToLower(s) == q {
			return true
		}
	}
	return false
}

// textResult renders v as the JSON text content of a tool result.
func textResult(v any) *mcpsdk.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		}
	}
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}}}
}
