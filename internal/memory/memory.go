// Package memory implements the per-role insight store (C6): background
// extraction of atomic facts from recent conversation, a cached narrative
// overview, semantic removal/editing, and direct user insertion. All
// model-backed operations go through the same provider abstraction C7
// uses, at deterministic low temperature, following the teacher's
// single-shot completion pattern from internal/session/title.go.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/pellucid/hearth/internal/provider"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/pkg/types"
)

// extractSystemPrompt instructs the model to output ONLY a JSON array of
// atomic insight strings, mirroring the teacher's "output ONLY X" framing
// for title generation.
const extractSystemPrompt = `You extract durable, atomic facts worth remembering from a conversation excerpt.

Rules:
- Output ONLY a JSON array of strings. Nothing else, no explanation, no code fence.
- Each string is one atomic, self-contained fact (a preference, a decision, a piece of context).
- Skip small talk, pleasantries, and anything already obvious from the system prompt.
- If nothing is worth remembering, output an empty array: []`

const overviewSystemPrompt = `You summarize a list of remembered facts into a short, narrative markdown overview.

Rules:
- Output ONLY the markdown overview. No heading, no preamble.
- 2-5 sentences or a short bulleted list, whichever reads more naturally.
- Do not invent facts beyond what's given.`

const selectSystemPrompt = `You are given a numbered list of remembered facts and a selection description.

Rules:
- Output ONLY a JSON array of the 0-based indices of facts that match the selection. Nothing else.
- If nothing matches, output an empty array: [].`

const editSystemPrompt = `You rewrite one remembered fact according to an instruction.

Rules:
- Output ONLY the rewritten fact text. Nothing else, no quotes, no explanation.`

// Service implements C6 against a Store and the shared provider registry.
type Service struct {
	store    *store.Store
	registry *provider.Registry

	mu       sync.Mutex
	overview map[string]cachedOverview // keyed by roleID
}

type cachedOverview struct {
	generation int
	text       string
	empty      bool
}

// New constructs the memory service.
func New(st *store.Store, registry *provider.Registry) *Service {
	return &Service{
		store:    st,
		registry: registry,
		overview: make(map[string]cachedOverview),
	}
}

// Extract asks the model to produce atomic insight strings from recent
// messages and persists each one, deduping by content hash. It is meant
// to run as a background task after a turn; failures are returned to the
// caller (internal/turn logs and discards them rather than surfacing to
// the user, per spec).
func (s *Service) Extract(ctx context.Context, roleID string, recent []types.Message) (int, error) {
	if len(recent) == 0 {
		return 0, nil
	}

	var transcript strings.Builder
	for _, m := range recent {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	raw, err := s.complete(ctx, extractSystemPrompt, "Conversation excerpt:\n\n"+transcript.String())
	if err != nil {
		return 0, err
	}

	var facts []string
	if err := json.Unmarshal([]byte(stripFence(raw)), &facts); err != nil {
		return 0, fmt.Errorf("memory: parsing extracted facts: %w", err)
	}

	inserted := 0
	for _, fact := range facts {
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		in := &types.Insight{
			ID:          uuid.NewString(),
			RoleID:      roleID,
			ContentHash: contentHash(fact),
			Text:        fact,
			Source:      types.InsightSourceExtract,
		}
		ok, err := s.store.UpsertInsight(in)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}

	if inserted > 0 {
		s.invalidate(roleID)
	}
	return inserted, nil
}

// OverviewResult is the shape the /memory/overview endpoint returns.
type OverviewResult struct {
	Empty    bool   `json:"empty,omitempty"`
	Overview string `json:"overview,omitempty"`
}

// Overview returns a cached narrative summary of roleID's insight set,
// regenerating it only when the insight count (the generation signal)
// has changed since the last call.
func (s *Service) Overview(ctx context.Context, roleID string) (*OverviewResult, error) {
	insights, err := s.store.ListInsights(roleID)
	if err != nil {
		return nil, err
	}
	if len(insights) == 0 {
		return &OverviewResult{Empty: true}, nil
	}

	generation := len(insights)
	s.mu.Lock()
	cached, ok := s.overview[roleID]
	s.mu.Unlock()
	if ok && cached.generation == generation {
		return &OverviewResult{Overview: cached.text}, nil
	}

	var list strings.Builder
	for _, in := range insights {
		fmt.Fprintf(&list, "- %s\n", in.Text)
	}

	text, err := s.complete(ctx, overviewSystemPrompt, "Facts:\n\n"+list.String())
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)

	s.mu.Lock()
	s.overview[roleID] = cachedOverview{generation: generation, text: text}
	s.mu.Unlock()

	return &OverviewResult{Overview: text}, nil
}

// SelectionResult is the shape shared by Remove and Edit.
type SelectionResult struct {
	Titles []string `json:"titles"`
	Count  int      `json:"count"`
}

// Remove deletes every insight semantically matched by selectionText.
func (s *Service) Remove(ctx context.Context, roleID, selectionText string) (*SelectionResult, error) {
	insights, err := s.store.ListInsights(roleID)
	if err != nil {
		return nil, err
	}
	matched, err := s.selectMatching(ctx, insights, selectionText)
	if err != nil {
		return nil, err
	}

	var titles []string
	for _, idx := range matched {
		if err := s.store.DeleteInsight(insights[idx].ID); err != nil {
			return nil, err
		}
		titles = append(titles, title(insights[idx].Text))
	}
	if len(titles) > 0 {
		s.invalidate(roleID)
	}
	return &SelectionResult{Titles: titles, Count: len(titles)}, nil
}

// Edit rewrites every insight semantically matched by selectionText per
// instruction.
func (s *Service) Edit(ctx context.Context, roleID, selectionText, instruction string) (*SelectionResult, error) {
	insights, err := s.store.ListInsights(roleID)
	if err != nil {
		return nil, err
	}
	matched, err := s.selectMatching(ctx, insights, selectionText)
	if err != nil {
		return nil, err
	}

	var titles []string
	for _, idx := range matched {
		in := insights[idx]
		rewritten, err := s.complete(ctx, editSystemPrompt,
			fmt.Sprintf("Fact: %s\n\nInstruction: %s", in.Text, instruction))
		if err != nil {
			return nil, err
		}
		rewritten = strings.TrimSpace(rewritten)
		if rewritten == "" {
			continue
		}
		if err := s.store.UpdateInsightText(in.ID, rewritten, contentHash(rewritten)); err != nil {
			return nil, err
		}
		titles = append(titles, title(rewritten))
	}
	if len(titles) > 0 {
		s.invalidate(roleID)
	}
	return &SelectionResult{Titles: titles, Count: len(titles)}, nil
}

// SaveToMemory directly inserts a user-supplied insight, bypassing
// extraction.
func (s *Service) SaveToMemory(roleID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("memory: empty text")
	}
	in := &types.Insight{
		ID:          uuid.NewString(),
		RoleID:      roleID,
		ContentHash: contentHash(text),
		Text:        text,
		Source:      types.InsightSourceManual,
	}
	if _, err := s.store.UpsertInsight(in); err != nil {
		return err
	}
	s.invalidate(roleID)
	return nil
}

func (s *Service) invalidate(roleID string) {
	s.mu.Lock()
	delete(s.overview, roleID)
	s.mu.Unlock()
}

// selectMatching asks the model which insights match selectionText and
// returns their indices into insights.
func (s *Service) selectMatching(ctx context.Context, insights []types.Insight, selectionText string) ([]int, error) {
	if len(insights) == 0 {
		return nil, nil
	}

	var list strings.Builder
	for i, in := range insights {
		fmt.Fprintf(&list, "%d. %s\n", i, in.Text)
	}

	raw, err := s.complete(ctx, selectSystemPrompt,
		fmt.Sprintf("Facts:\n\n%s\nSelection: %s", list.String(), selectionText))
	if err != nil {
		return nil, err
	}

	var indices []int
	if err := json.Unmarshal([]byte(stripFence(raw)), &indices); err != nil {
		return nil, fmt.Errorf("memory: parsing selection: %w", err)
	}

	var out []int
	for _, idx := range indices {
		if idx >= 0 && idx < len(insights) {
			out = append(out, idx)
		}
	}
	return out, nil
}

// complete runs a deterministic, low-temperature single-shot completion
// against the registry's default model and collects the full response
// text — the teacher's title-generation shape from internal/session/title.go,
// generalized to an arbitrary system prompt instead of one hardcoded for
// titles.
func (s *Service) complete(ctx context.Context, systemPrompt, userContent string) (string, error) {
	m, err := s.registry.DefaultModel()
	if err != nil {
		return "", err
	}
	prov, err := s.registry.Get(m.ProviderID)
	if err != nil {
		return "", err
	}

	stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
		Model: m.ID,
		Messages: []*schema.Message{
			{Role: schema.System, Content: systemPrompt},
			{Role: schema.User, Content: userContent},
		},
		MaxTokens:   1024,
		Temperature: 0.0,
	})
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var out strings.Builder
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		out.WriteString(msg.Content)
	}
	return out.String(), nil
}

func contentHash(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])
}

// stripFence removes a wrapping ```json ... ``` or ``` ... ``` code fence,
// in case the model ignores the "no code fence" instruction.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// title derives a short label from an insight's full text, for the
// titles list Remove/Edit return to the caller.
func title(text string) string {
	const maxLen = 60
	text = strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if len(text) > maxLen {
		return text[:maxLen-1] + "…"
	}
	return text
}
