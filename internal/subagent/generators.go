package subagent

import (
	"context"
	"fmt"

	"prodagent/internal/contracts"
	"prodagent/internal/generation"
)

const subagentSystemPrompt = `You are a product discovery specialist. You always respond with a single JSON object matching the requested schema, nothing else.`

// personaGenerator derives user personas from the PRD's target users.
type personaGenerator struct {
	gen        generation.Generator
	maxRepairs int
}

func (g *personaGenerator) Kind() contracts.ArtifactKind { return contracts.KindPersona }

func (g *personaGenerator) Generate(ctx context.Context, rc *contracts.RunContext, doc *contracts.PRDocument) (any, error) {
	prompt := documentBrief(rc, doc) + `
## Task
Create 2-4 user personas grounded in the target users above. Each persona is
specific enough to guide design decisions.

Respond with JSON:
{"personas": [{"name": "...", "role": "...", "goals": ["..."], "frustrations": ["..."], "quote": "..."}]}`

	var set contracts.PersonaSet
	if _, err := generation.GenerateJSON(ctx, g.gen, generation.Request{
		System: subagentSystemPrompt,
		Prompt: prompt,
	}, &set, g.maxRepairs); err != nil {
		return nil, err
	}
	if len(set.Personas) == 0 {
		return nil, fmt.Errorf("persona generation produced no personas")
	}
	return &set, nil
}

// storyMapGenerator maps key features onto epics and stories.
type storyMapGenerator struct {
	gen        generation.Generator
	maxRepairs int
}

func (g *storyMapGenerator) Kind() contracts.ArtifactKind { return contracts.KindStoryMap }

func (g *storyMapGenerator) Generate(ctx context.Context, rc *contracts.RunContext, doc *contracts.PRDocument) (any, error) {
	prompt := documentBrief(rc, doc) + `
## Task
Build a user story map from the key features above: one epic per major
activity, with prioritized stories underneath.

Respond with JSON:
{"epics": [{"title": "...", "stories": [{"title": "...", "narrative": "As a ..., I want ..., so that ...", "priority": "must"|"should"|"could", "acceptance": "..."}]}]}`

	var storyMap contracts.StoryMap
	if _, err := generation.GenerateJSON(ctx, g.gen, generation.Request{
		System: subagentSystemPrompt,
		Prompt: prompt,
	}, &storyMap, g.maxRepairs); err != nil {
		return nil, err
	}
	if len(storyMap.Epics) == 0 {
		return nil, fmt.Errorf("story map generation produced no epics")
	}
	return &storyMap, nil
}

// researchGenerator produces a competitive/market research brief.
type researchGenerator struct {
	gen        generation.Generator
	maxRepairs int
}

func (g *researchGenerator) Kind() contracts.ArtifactKind { return contracts.KindResearch }

func (g *researchGenerator) Generate(ctx context.Context, rc *contracts.RunContext, doc *contracts.PRDocument) (any, error) {
	prompt := documentBrief(rc, doc) + `
## Task
Write a short research brief for this product: the competitive landscape it
enters, findings that support or challenge the requirements, and open items
worth investigating before build.

Respond with JSON:
{"summary": "...", "findings": ["..."], "open_items": ["..."]}`

	var brief contracts.ResearchBrief
	if _, err := generation.GenerateJSON(ctx, g.gen, generation.Request{
		System: subagentSystemPrompt,
		Prompt: prompt,
	}, &brief, g.maxRepairs); err != nil {
		return nil, err
	}
	if brief.Summary == "" {
		return nil, fmt.Errorf("research generation produced no summary")
	}
	return &brief, nil
}
