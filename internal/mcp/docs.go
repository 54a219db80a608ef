package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `applet-engine stores survey applets as a mutable live graph plus an immutable, linearly versioned history.

Core concepts (keep this mental model small):
- Applet: the root of a definition graph (activities → items, flows → flow items).
- Live graph: the current editable state, addressed by plain UUIDs.
- History graph: frozen snapshots, addressed by id_version strings of the form {uuid}_{version}.
- Version: dotted decimal starting at 1.0.0; every effective update advances it by one step (1.0.0 → 1.0.1, 1.9.9 → 2.0.0).
- Activity key: a correlation UUID you choose per activity in a payload so flow items can reference activities that do not exist yet. Keys are never stored.

Rules of engagement (default workflow):
1) Create: call create_applet with the full definition; you get the applet back at version 1.0.0.
2) Edit: call get_applet, modify the definition, and send the whole thing to update_applet. Carry the ids of entities you are keeping; omit an id to create a new entity; leave an entity out to remove it.
3) Write safely: pass expected_version with the version you last saw. A STALE_APPLET error means someone else published first; reload and resubmit.
4) No-op updates are detected server-side: if nothing semantically changed, no version is created and the response says unchanged=true.
5) Inspect history: list_applet_versions for the timeline, get_applet_version for one frozen snapshot, diff_applet_versions for what changed between two versions.
6) Encryption is immutable after create; omit the encryption bundle on update to keep the current one.

Transport notes:
- HTTP: authenticate with a bearer token; pass the author via the X-Actor-Id header.
- Stdio: pass the author via _meta.actor_id when supported.

Docs (progressive disclosure):
- applet://docs/index (what to read when)
- applet://docs/concepts (glossary + invariants)
- applet://docs/workflows/editing
- applet://docs/conditional-logic
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "applet://docs/index",
		Name:        "docs_index",
		Title:       "applet-engine docs index",
		Description: "Entry point for agent-facing docs: what exists and what to read when.",
		Content: `# applet-engine: Agent Docs Index

This server is designed for **progressive disclosure**: keep your baseline context small and load deeper docs only when needed.

## Quick start (no deep docs)

1. ` + "`create_applet`" + ` with a full definition → version 1.0.0.
2. ` + "`get_applet`" + ` to load the live state before editing.
3. ` + "`update_applet`" + ` with the whole modified definition and ` + "`expected_version`" + `.
4. ` + "`list_applet_versions`" + ` / ` + "`get_applet_version`" + ` / ` + "`diff_applet_versions`" + ` to work with history.

## Docs (read on demand)

- ` + "`applet://docs/concepts`" + ` — glossary + invariants (live vs history, id_version, versioning).
- ` + "`applet://docs/workflows/editing`" + ` — the edit loop, id carrying, and stale-write recovery.
- ` + "`applet://docs/conditional-logic`" + ` — how item visibility rules are written and resolved.

## Intentional limitations

- History is append-only: there is no tool that edits or deletes a stored version.
- ` + "`update_applet`" + ` replaces the definition wholesale; there is no patch-style partial update.
`,
	},
	{
		URI:         "applet://docs/concepts",
		Name:        "docs_concepts",
		Title:       "Concepts and invariants",
		Description: "Mental model + invariant rules: live vs history graphs, id_version addressing, and version arithmetic.",
		Content: `# Concepts and invariants

## Glossary

- **Applet**: root of a definition graph with ` + "`display_name`" + `, ` + "`encryption`" + `, activities, and flows.
- **Activity**: an ordered set of items (screens). At most one activity per applet is ` + "`is_reviewable`" + `.
- **Item**: one screen with a ` + "`response_type`" + `, type-specific ` + "`response_values`" + `/` + "`config`" + `, and optional conditional logic.
- **Flow**: an ordered sequence of the applet's activities. A reviewable activity cannot appear in a flow.
- **Version**: dotted decimal string. The sequence is linear; there are no branches.
- **id_version**: ` + "`{uuid}_{version}`" + `, splitting on the first underscore. This addresses one history row.

## Live vs history

The live graph is what ` + "`get_applet`" + ` returns and what ` + "`update_applet`" + ` rewrites. Every effective
create/update also freezes a deep copy into the history graph. History rows reference each other by
id_version, never by live ids, so a snapshot stays internally consistent no matter what happens to
the live graph afterwards.

## Version arithmetic

Versions advance by treating the digits as one number: 1.0.0 → 1.0.1 → … → 1.9.9 → 2.0.0.
A rollover past 9.9.9 grows a digit (1.0.0.0).

## What counts as a change

Updates are compared semantically against the previous version. Entity identity is the UUID, so a
renamed item is a modification, not a remove + add. Changed translated text counts even when the
change is whitespace. If the comparison finds nothing, no version is minted.
`,
	},
	{
		URI:         "applet://docs/workflows/editing",
		Name:        "docs_workflow_editing",
		Title:       "Editing workflow",
		Description: "The read-modify-write loop: carrying ids, activity keys, expected_version, and stale-write recovery.",
		Content: `# Editing workflow

## The loop

1. ` + "`get_applet`" + ` → note ` + "`version`" + ` and the ids of every entity.
2. Modify the definition locally.
3. ` + "`update_applet`" + ` with the full definition and ` + "`expected_version`" + ` set to the version from step 1.

## Carrying ids

- Keep an entity: include its ` + "`id`" + `.
- Create an entity: omit ` + "`id`" + `.
- Remove an entity: leave it out of the payload.

Dropping an id you meant to keep silently turns an edit into remove + create, which loses the
entity's history thread. Always round-trip ids.

## Activity keys

Every new activity in a payload needs a ` + "`key`" + ` (any UUID, unique within the payload); activities
carrying an ` + "`id`" + ` may omit it when no flow item references them by key. Flow items
reference activities by ` + "`activity_key`" + ` so a flow can point at an activity created in the same
request. Flow items may instead use ` + "`activity_id`" + ` for activities that already exist, but exactly
one of the two per flow item.

## Stale writes

A ` + "`STALE_APPLET`" + ` error means the live applet moved past your ` + "`expected_version`" + `. Reload with
` + "`get_applet`" + `, reconcile your edit with what changed (` + "`diff_applet_versions`" + ` helps), and resubmit.
Do not retry blindly without reloading.
`,
	},
	{
		URI:         "applet://docs/conditional-logic",
		Name:        "docs_conditional_logic",
		Title:       "Conditional logic guide",
		Description: "How item visibility rules reference sibling items and how those references are stored.",
		Content: `# Conditional logic guide

An item's ` + "`conditional_logic`" + ` controls its visibility from the answers to sibling items in the
same activity.

## Payload form

` + "```json" + `
{
  "match": "any",
  "conditions": [
    {"item_name": "mood", "type": "EQUAL_TO_OPTION", "payload": {"option_value": "2"}}
  ]
}
` + "```" + `

- ` + "`match`" + ` is ` + "`any`" + ` or ` + "`all`" + `.
- ` + "`item_name`" + ` references a sibling item **by name**, forward references included.
- ` + "`payload`" + ` is condition-type specific and is stored as given.

## What the server does

On write, item names are resolved to the sibling's UUID; unknown names are a validation error.
In history snapshots the reference becomes the sibling's id_version, so old logic keeps pointing
at the exact item revision it was written against.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
