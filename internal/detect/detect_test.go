package detect

import (
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"doctype", "<!DOCTYPE html><p>x</p>", TypeHTML},
		{"doctype lowercase", "<!doctype html>\n<div></div>", TypeHTML},
		{"html tag", "<html lang=\"en\"><body></body></html>", TypeHTML},
		{"head tag", "<head><title>x</title></head>", TypeHTML},
		{"fragment", "<div><button>Go</button></div>", TypeHTML},
		{"empty", "", TypeHTML},
		{
			"component with hooks",
			"import React, { useState } from 'react';\nexport default function App() {\n  const [n, setN] = useState(0);\n  return (<div>{n}</div>);\n}",
			TypeReact,
		},
		{
			"arrow component",
			"const Counter = () => {\n  const [c] = useState(1);\n  return <Box value={c} />;\n}",
			TypeReact,
		},
		{"single marker", "const x = useState;", TypeHTML},
		{
			"document containing react wins as html",
			"<!DOCTYPE html><script>import React from 'react'; useState();</script>",
			TypeHTML,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.code); got != tt.want {
				t.Errorf("Detect = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapReact(t *testing.T) {
	jsx := "import React, { useState } from 'react';\n\nexport default function Counter() {\n  return (<div/>);\n}\n"
	page := WrapReact(jsx)

	if !IsWrapped(page) {
		t.Fatal("wrapped page is missing the react marker")
	}
	if strings.Contains(page, "from 'react'") {
		t.Error("react import was not removed")
	}
	if !strings.Contains(page, "function App()") {
		t.Error("default export was not renamed to App")
	}
	if strings.Contains(page, "export default") {
		t.Error("export keyword left in page")
	}
	if Detect(page) != TypeHTML {
		t.Error("wrapped page should detect as html")
	}
}

func TestWrapReact_ArrowExport(t *testing.T) {
	page := WrapReact("export default const Widget = () => { return null; };")
	if !strings.Contains(page, "const App = () =>") {
		t.Errorf("arrow export not renamed:\n%s", page)
	}
}

func TestIsWrapped(t *testing.T) {
	if IsWrapped("<div>plain</div>") {
		t.Error("plain html reported as wrapped")
	}
}
