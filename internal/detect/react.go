package detect

import (
	"regexp"
	"strings"
)

// reactMarker appears in every page produced by WrapReact.
const reactMarker = "react.production.min.js"

var (
	reactImport      = regexp.MustCompile(`(?m)^import\s+.*?from\s+['"]react(-dom)?['"];?\s*$`)
	exportDefaultFn  = regexp.MustCompile(`export\s+default\s+function\s+\w+`)
	exportDefaultVar = regexp.MustCompile(`export\s+default\s+(const|let|var)\s+\w+\s*=`)
	exportDefaultID  = regexp.MustCompile(`(?m)^export\s+default\s+\w+;?\s*$`)
	exportKeyword    = regexp.MustCompile(`(?m)^export\s+`)
)

// IsWrapped reports whether content is already a page built by WrapReact.
func IsWrapped(content string) bool {
	return strings.Contains(content, reactMarker)
}

// WrapReact embeds a JSX component in an HTML page that loads React and
// Babel from a CDN and renders the default export as App.
func WrapReact(jsx string) string {
	return reactPrefix + transformModule(jsx) + reactSuffix
}

func transformModule(code string) string {
	code = reactImport.ReplaceAllString(code, "")
	code = exportDefaultFn.ReplaceAllString(code, "function App")
	code = exportDefaultVar.ReplaceAllString(code, "const App =")
	code = exportDefaultID.ReplaceAllString(code, "")
	code = exportKeyword.ReplaceAllString(code, "")
	return code
}

const reactPrefix = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>React Tool</title>
    <script src="https://cdn.tailwindcss.com/3.4.1"></script>
    <script crossorigin src="https://unpkg.com/react@18.2.0/umd/react.production.min.js"></script>
    <script crossorigin src="https://unpkg.com/react-dom@18.2.0/umd/react-dom.production.min.js"></script>
    <script crossorigin src="https://unpkg.com/@babel/standalone@7.23.5/babel.min.js"></script>
    <style>
        body { margin: 0; font-family: system-ui, -apple-system, sans-serif; }
    </style>
</head>
<body>
    <div id="root"></div>
    <script type="text/babel" data-type="module">
        const React = window.React;
        const {
            useState, useEffect, useContext, useReducer,
            useCallback, useMemo, useRef,
            useLayoutEffect, useImperativeHandle, useDebugValue,
            useTransition, useDeferredValue, useId, useSyncExternalStore, useInsertionEffect
        } = React;
        const ReactDOM = window.ReactDOM;

`

const reactSuffix = `

        const root = ReactDOM.createRoot(document.getElementById('root'));
        root.render(React.createElement(App));
    </script>
</body>
</html>`
