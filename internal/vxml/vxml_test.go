package vxml

import (
	"strings"
	"testing"
)

// TestEscape verifies the XML-significant characters are replaced.
func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"a & b", "a &amp; b"},
		{"<tag>", "&lt;tag&gt;"},
		{`say "hi"`, "say &quot;hi&quot;"},
		{"it's", "it&apos;s"},
	}
	for _, tt := range tests {
		if got := Escape(tt.in); got != tt.want {
			t.Errorf("Escape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestFragment_String verifies each fragment kind renders its element.
func TestFragment_String(t *testing.T) {
	if got, want := Speech("hi there").String(), "<prompt>hi there</prompt>"; got != want {
		t.Errorf("Speech = %q, want %q", got, want)
	}
	if got, want := Audio("http://x/a.wav").String(), `<audio src="http://x/a.wav"/>`; got != want {
		t.Errorf("Audio = %q, want %q", got, want)
	}
	if got, want := Break(500).String(), `<break time="500ms"/>`; got != want {
		t.Errorf("Break = %q, want %q", got, want)
	}
}

// TestTurnDocument_InlineGrammar verifies output fragments, grammar, and the
// submit directive all land in the rendered document.
func TestTurnDocument_InlineGrammar(t *testing.T) {
	doc := TurnDocument(Input{
		Output:      []Fragment{Speech("hello & welcome")},
		Prompt:      "Pick one",
		Grammar:     "one | two",
		NoInputText: "Still there?",
		Action:      "http://host:7501/?",
	})

	for _, want := range []string{
		"<prompt>hello &amp; welcome</prompt>",
		"<grammar>one | two</grammar>",
		"<field name=\"result\">",
		"<noinput><prompt>Still there?</prompt><reprompt/></noinput>",
		`<submit next="http://host:7501/?" method="get" namelist="result"/>`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("TurnDocument missing %q in:\n%s", want, doc)
		}
	}
}

// TestTurnDocument_ExternalGrammar verifies the src form is used when set.
func TestTurnDocument_ExternalGrammar(t *testing.T) {
	doc := TurnDocument(Input{GrammarSrc: "http://host/digits.grxml", Action: "http://h/"})
	if !strings.Contains(doc, `<grammar src="http://host/digits.grxml"/>`) {
		t.Errorf("TurnDocument missing external grammar reference:\n%s", doc)
	}
	if strings.Contains(doc, "<grammar>") {
		t.Errorf("TurnDocument rendered an inline grammar alongside the reference:\n%s", doc)
	}
}

// TestRecordDocument verifies the capture element and multipart submit.
func TestRecordDocument(t *testing.T) {
	doc := RecordDocument(RecordInput{
		Prompt:  "Speak after the beep",
		MaxTime: "30s",
		Beep:    true,
		Action:  "http://host:7501/?upload=audio",
	})
	for _, want := range []string{
		`<record name="result" maxtime="30s" beep="true">`,
		`enctype="multipart/form-data"`,
		`method="post"`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("RecordDocument missing %q in:\n%s", want, doc)
		}
	}
}

// TestRedirectDocument verifies a single navigation directive.
func TestRedirectDocument(t *testing.T) {
	doc := RedirectDocument("http://host:7501/?result=start")
	if got := strings.Count(doc, "<goto"); got != 1 {
		t.Errorf("RedirectDocument goto count = %d, want 1 in:\n%s", got, doc)
	}
	if !strings.Contains(doc, `next="http://host:7501/?result=start"`) {
		t.Errorf("RedirectDocument missing target in:\n%s", doc)
	}
}

// TestGotoDocument verifies the terminal redirect shape: exactly one
// navigation directive and no input directive.
func TestGotoDocument(t *testing.T) {
	doc := GotoDocument([]Fragment{Speech("goodbye")}, "http://elsewhere/")
	if got := strings.Count(doc, "<goto"); got != 1 {
		t.Errorf("goto count = %d, want 1", got)
	}
	if strings.Contains(doc, "<field") || strings.Contains(doc, "<record") {
		t.Errorf("GotoDocument contains an input directive:\n%s", doc)
	}
	if !strings.Contains(doc, "<prompt>goodbye</prompt>") {
		t.Errorf("GotoDocument missing flushed fragment:\n%s", doc)
	}
}

// TestDisconnectDocument verifies the hangup shape: a disconnect directive
// and no input directive.
func TestDisconnectDocument(t *testing.T) {
	doc := DisconnectDocument(nil)
	if !strings.Contains(doc, "<disconnect/>") {
		t.Errorf("DisconnectDocument missing disconnect in:\n%s", doc)
	}
	if strings.Contains(doc, "<field") || strings.Contains(doc, "<goto") {
		t.Errorf("DisconnectDocument contains a further directive:\n%s", doc)
	}
}

// TestErrorDocument verifies the spoken-error fragment is present.
func TestErrorDocument(t *testing.T) {
	doc := ErrorDocument("connection refused")
	if !strings.Contains(doc, "<prompt>An error occurred: connection refused</prompt>") {
		t.Errorf("ErrorDocument missing spoken error in:\n%s", doc)
	}
	if !strings.Contains(doc, "<disconnect/>") {
		t.Errorf("ErrorDocument missing disconnect in:\n%s", doc)
	}
}
