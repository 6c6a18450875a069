package engine

import "fmt"

// Fetch modes a site can be configured with.
const (
	ModeBrowser = "browser"
	ModeHTTP    = "http"
	ModeAuto    = "auto"
)

// ForMode builds the engine for a site's fetch mode. In auto mode the plain
// HTTP result is used only when accept takes it; otherwise the browser
// renders the page. accept is not consulted in the single-engine modes.
func ForMode(mode string, httpEngine, browser Engine, accept AcceptFunc) (Engine, error) {
	switch mode {
	case "", ModeBrowser:
		if browser == nil {
			return nil, fmt.Errorf("fetch mode %q needs a browser engine", ModeBrowser)
		}
		return browser, nil
	case ModeHTTP:
		return httpEngine, nil
	case ModeAuto:
		if browser == nil {
			return nil, fmt.Errorf("fetch mode %q needs a browser engine", ModeAuto)
		}
		return NewChain(accept, httpEngine, browser), nil
	}
	return nil, fmt.Errorf("unknown fetch mode %q", mode)
}
