// Package vxml renders the voice-markup documents the bridge sends to the
// remote voice client. It is deliberately thin: string formatting over a
// small fragment vocabulary, with no knowledge of sessions or transport.
package vxml

import (
	"fmt"
	"strings"
)

// ContentType is the media type for rendered documents.
const ContentType = "text/xml"

const header = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<vxml version=\"2.0\">\n"
const footer = "</vxml>\n"

type fragmentKind int

const (
	kindSpeech fragmentKind = iota
	kindAudio
	kindBreak
)

// Fragment is one unit of renderable output: speech text, an audio
// reference, or a timed pause.
type Fragment struct {
	kind fragmentKind
	text string
	ms   int64
}

// Speech returns a spoken-text fragment.
func Speech(text string) Fragment {
	return Fragment{kind: kindSpeech, text: text}
}

// Audio returns an audio-reference fragment.
func Audio(src string) Fragment {
	return Fragment{kind: kindAudio, text: src}
}

// Break returns a timed-silence fragment.
func Break(ms int64) Fragment {
	return Fragment{kind: kindBreak, ms: ms}
}

// String renders the fragment as markup.
func (f Fragment) String() string {
	switch f.kind {
	case kindAudio:
		return fmt.Sprintf("<audio src=%q/>", Escape(f.text))
	case kindBreak:
		return fmt.Sprintf("<break time=%q/>", fmt.Sprintf("%dms", f.ms))
	default:
		return fmt.Sprintf("<prompt>%s</prompt>", Escape(f.text))
	}
}

// Escape replaces XML-significant characters in s.
func Escape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

func writeFragments(b *strings.Builder, indent string, frags []Fragment) {
	for _, f := range frags {
		b.WriteString(indent)
		b.WriteString(f.String())
		b.WriteString("\n")
	}
}

// Input describes one prompt-and-reply turn document.
// Exactly one of Grammar (inline) or GrammarSrc (external reference) should
// be set; the session layer enforces that before rendering.
type Input struct {
	Output      []Fragment // Accumulated fragments flushed ahead of the prompt
	Prompt      string     // Spoken prompt for the field
	Grammar     string     // Inline grammar body
	GrammarSrc  string     // External grammar URL
	NoInputText string     // Optional handler text when the caller says nothing
	NoMatchText string     // Optional handler text when the reply doesn't match
	Action      string     // Continuation URL the reply is submitted to
}

// TurnDocument renders a turn: flushed output fragments followed by an input
// field whose completion submits result= back to the continuation URL.
func TurnDocument(in Input) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("  <form>\n")
	writeFragments(&b, "    ", in.Output)
	b.WriteString("    <field name=\"result\">\n")
	if in.Prompt != "" {
		fmt.Fprintf(&b, "      <prompt>%s</prompt>\n", Escape(in.Prompt))
	}
	if in.GrammarSrc != "" {
		fmt.Fprintf(&b, "      <grammar src=%q/>\n", Escape(in.GrammarSrc))
	} else {
		fmt.Fprintf(&b, "      <grammar>%s</grammar>\n", Escape(in.Grammar))
	}
	if in.NoInputText != "" {
		fmt.Fprintf(&b, "      <noinput><prompt>%s</prompt><reprompt/></noinput>\n", Escape(in.NoInputText))
	}
	if in.NoMatchText != "" {
		fmt.Fprintf(&b, "      <nomatch><prompt>%s</prompt><reprompt/></nomatch>\n", Escape(in.NoMatchText))
	}
	fmt.Fprintf(&b, "      <filled><submit next=%q method=\"get\" namelist=\"result\"/></filled>\n", Escape(in.Action))
	b.WriteString("    </field>\n")
	b.WriteString("  </form>\n")
	b.WriteString(footer)
	return b.String()
}

// RecordInput describes an audio-capture turn document.
type RecordInput struct {
	Output  []Fragment
	Prompt  string
	MaxTime string // Markup duration such as "60s"; empty for platform default
	Beep    bool
	Action  string // Continuation URL the recording is posted to
}

// RecordDocument renders a recording turn: the capture element posts its
// multipart payload (and the caller's disposition in result=) back to the
// continuation URL.
func RecordDocument(in RecordInput) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("  <form>\n")
	writeFragments(&b, "    ", in.Output)
	b.WriteString("    <record name=\"result\"")
	if in.MaxTime != "" {
		fmt.Fprintf(&b, " maxtime=%q", in.MaxTime)
	}
	if in.Beep {
		b.WriteString(" beep=\"true\"")
	}
	b.WriteString(">\n")
	if in.Prompt != "" {
		fmt.Fprintf(&b, "      <prompt>%s</prompt>\n", Escape(in.Prompt))
	}
	fmt.Fprintf(&b, "      <filled><submit next=%q method=\"post\" enctype=\"multipart/form-data\" namelist=\"result\"/></filled>\n", Escape(in.Action))
	b.WriteString("    </record>\n")
	b.WriteString("  </form>\n")
	b.WriteString(footer)
	return b.String()
}

// RedirectDocument renders the invoker's reply: a single navigation
// directive sending the client to the worker's endpoint.
func RedirectDocument(target string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("  <form>\n")
	fmt.Fprintf(&b, "    <block><goto next=%q/></block>\n", Escape(target))
	b.WriteString("  </form>\n")
	b.WriteString(footer)
	return b.String()
}

// GotoDocument renders a terminal response: any flushed fragments followed
// by a navigation directive to url. No input directive is emitted.
func GotoDocument(frags []Fragment, url string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("  <form>\n")
	b.WriteString("    <block>\n")
	writeFragments(&b, "      ", frags)
	fmt.Fprintf(&b, "      <goto next=%q/>\n", Escape(url))
	b.WriteString("    </block>\n")
	b.WriteString("  </form>\n")
	b.WriteString(footer)
	return b.String()
}

// DisconnectDocument renders a terminal response: any flushed fragments
// followed by a disconnect directive. No input directive is emitted.
func DisconnectDocument(frags []Fragment) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("  <form>\n")
	b.WriteString("    <block>\n")
	writeFragments(&b, "      ", frags)
	b.WriteString("      <disconnect/>\n")
	b.WriteString("    </block>\n")
	b.WriteString("  </form>\n")
	b.WriteString(footer)
	return b.String()
}

// ErrorDocument renders a minimal spoken-error response. The voice client
// cannot present a raw transport failure, so relay errors become speech.
func ErrorDocument(msg string) string {
	return DisconnectDocument([]Fragment{Speech("An error occurred: " + msg)})
}
