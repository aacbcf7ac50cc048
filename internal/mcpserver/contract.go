package mcpserver

// PostFormatContract describes the canonical Markdown post format that
// LLM consumers should follow when creating posts.
const PostFormatContract = `# Post Format Contract

Every post is one Markdown file named ` + "`" + `<slug>.md` + "`" + ` at the content root.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED
date: 2025-01-15                    # REQUIRED – YYYY-MM-DD or RFC 3339
description: One-sentence summary   # REQUIRED – used in lists and link previews
draft: false                        # OPTIONAL – drafts are never embeddable
islands:                            # OPTIONAL – interactive components used by the body
  - quiz
---

Body text in standard Markdown.

Use [[trigger:content]] to open a reference in a side pane.
` + "```" + `

## Bracket references

A reference is written ` + "`" + `[[trigger:content]]` + "`" + `. The trigger is the visible text; the
content says what to open. An optional kind can be placed before the content:
` + "`" + `[[trigger:artifact:content]]` + "`" + ` or ` + "`" + `[[trigger:site:content]]` + "`" + `.

The content resolves, in order, to:

1. a registered app id (opens in a new top-level view, never framed),
2. a registered artifact id,
3. an ` + "`" + `http://` + "`" + ` or ` + "`" + `https://` + "`" + ` URL,
4. another post's slug (lowercase letters, digits and hyphens),
5. an artifact id (UUID or short id).

Anything else, including ` + "`" + `javascript:` + "`" + `, ` + "`" + `data:` + "`" + ` and ` + "`" + `file:` + "`" + ` URLs, is rejected and
reported by the ` + "`" + `list_unresolved` + "`" + ` tool. Use ` + "`" + `resolve_reference` + "`" + ` to check a payload
and ` + "`" + `parse_brackets` + "`" + ` to preview how text is split.

## Rules

1. **YAML frontmatter is mandatory.** The ` + "`" + `---` + "`" + ` fences must be the first
   thing in the file (no leading blank lines).
2. **Slugs** are lowercase kebab-case (e.g. ` + "`" + `beyond-the-boxes` + "`" + `) and unique.
3. **A reference never spans lines**, and references inside code spans or code blocks
   are left as literal text.
4. **Empty content is not a reference:** ` + "`" + `[[trigger:]]` + "`" + ` stays literal text.
5. **Encoding** is UTF-8 with a trailing newline.
6. **No raw HTML**; it is stripped unless the site enables it.

## Assets & Images

- Upload assets via the ` + "`" + `upload_asset` + "`" + ` tool. It returns a ` + "`" + `markdownImage` + "`" + ` field ready to paste into the post body.
- Assets are stored in the shared ` + "`" + `assets/` + "`" + ` directory (flat, no sub-folders).
- Reference them with the absolute path: ` + "`" + `![description](/assets/filename.png)` + "`" + `
- Supported formats: png, jpg, jpeg, gif, webp, svg, pdf.

## Example

` + "```" + `markdown
---
title: Beyond the boxes
date: 2025-01-20
description: Notes on leaving the grid behind.
---

# Beyond the boxes

Start with [[the demo:artifact:2a378267-bc36-4858-942d-bf0815fdff85]], then read
[[the earlier essay:drawing-the-map]] or try [[the ritual:dtd-app]].

![Whiteboard photo](/assets/whiteboard.jpg)
` + "```" + `
`
