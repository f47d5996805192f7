// Package prompt holds the system-prompt templates for the three LLM
// stages (term extraction, literal translation, polish), selected by
// target language the way the original pipeline's prompts.py did with a
// filename suffix ("" for zh, "_en" for en).
package prompt

import "fmt"

// Templates is the set of prompt builders for one target language.
type Templates struct {
	lang string
}

// Load returns the Templates for targetLang. Any value other than "en"
// falls back to the zh (default) templates, matching prompts.py's
// `suffix = "_en" if target_lang == "en" else ""`.
func Load(targetLang string) Templates {
	if targetLang == "en" {
		return Templates{lang: "en"}
	}
	return Templates{lang: "zh"}
}

// TermExtract builds the system prompt for one term-extraction pass over
// a sampled chunk of cue text.
func (t Templates) TermExtract(content string) string {
	if t.lang == "en" {
		return fmt.Sprintf(`You are a bilingual terminology scout. Read the following subtitle excerpt and list every proper noun, recurring term, and named entity worth tracking as a glossary entry. Respond with a single JSON object mapping each source term to its best English rendering. Output JSON only, no prose.

Excerpt:
%s`, content)
	}
	return fmt.Sprintf(`你是一名双语术语挖掘员。阅读以下字幕片段，找出其中值得收录为术语表条目的专有名词、反复出现的词语和命名实体。只输出一个 JSON 对象，将每个原文术语映射到其最佳中文译名，不要输出 JSON 以外的任何内容。

片段：
%s`, content)
}

// LiteralTrans builds the system prompt for the literal-translation stage.
// jsonInput is the `[{"id":..,"text":..}, ...]` payload for the chunk.
func (t Templates) LiteralTrans(glossary, jsonInput string) string {
	if t.lang == "en" {
		return fmt.Sprintf(`Translate each subtitle cue below into faithful, literal English. Preserve meaning over fluency; polishing happens in a later pass. Use this glossary where applicable: %s

Respond with a JSON array, one object per input cue, each shaped as {"id": <id>, "trans": "<literal translation>"}. The array must have exactly the same length and the same set of ids as the input. Output JSON only.

Input:
%s`, glossary, jsonInput)
	}
	return fmt.Sprintf(`请将以下每条字幕逐句直译为中文，忠实原意优先于流畅度，润色将在后续阶段进行。请在合适之处应用以下术语表：%s

请输出一个 JSON 数组，每个输入字幕对应一个对象，形如 {"id": <id>, "trans": "<直译文本>"}。数组长度和 id 集合必须与输入完全一致。只输出 JSON。

输入：
%s`, glossary, jsonInput)
}

// ReviewAndPolish builds the system prompt for the polish stage. ctxPrev
// is the rolling-context string ("None" when absent).
func (t Templates) ReviewAndPolish(glossary, jsonInput, ctxPrev string) string {
	if t.lang == "en" {
		return fmt.Sprintf(`Rewrite each literal translation below into fluent, natural English appropriate for subtitles, keeping each cue's meaning and register. Use this glossary where applicable: %s

Preceding context (already polished, for continuity only, do not re-translate):
%s

Respond with a JSON array, one object per input cue, each shaped as {"id": <id>, "polished": "<polished translation>"}. The array must have exactly the same length and the same set of ids as the input. Output JSON only.

Input:
%s`, glossary, ctxPrev, jsonInput)
	}
	return fmt.Sprintf(`请将以下每条直译文本润色为自然流畅、适合字幕呈现的中文，保持每条原意与语气。请在合适之处应用以下术语表：%s

前文语境（已润色，仅供连贯参考，不要重新翻译）：
%s

请输出一个 JSON 数组，每个输入字幕对应一个对象，形如 {"id": <id>, "polished": "<润色文本>"}。数组长度和 id 集合必须与输入完全一致。只输出 JSON。

输入：
%s`, glossary, ctxPrev, jsonInput)
}
