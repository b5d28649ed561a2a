package client

import (
	"sync"

	"github.com/pterm/pterm"
	"github.com/ringline/console/cmd/consolectl/internal/dirctx"
)

// TerminalNavigator stands in for browser navigation: the "current location" is
// the console view a command is acting on, and a redirect to login records that
// view in .console and tells the user to sign in again.
type TerminalNavigator struct {
	mu         sync.Mutex
	serverURL  string
	location   string
	redirected string
}

// NewTerminalNavigator returns a navigator remembering locations for serverURL.
func NewTerminalNavigator(serverURL string) *TerminalNavigator {
	return &TerminalNavigator{serverURL: serverURL}
}

// SetLocation sets the view the running command is on.
func (n *TerminalNavigator) SetLocation(location string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = location
}

func (n *TerminalNavigator) CurrentLocation() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *TerminalNavigator) RedirectToLogin(returnTo string) {
	n.mu.Lock()
	if n.redirected == returnTo && returnTo != "" {
		n.mu.Unlock()
		return
	}
	n.redirected = returnTo
	n.mu.Unlock()

	if returnTo != "" {
		if err := dirctx.SetReturnTo(n.serverURL, returnTo); err != nil {
			pterm.Warning.Printf("Could not remember %s: %v\n", returnTo, err)
		}
	}
	pterm.Warning.Println("Session expired or missing; run `consolectl auth login` to continue.")
}

// Redirected returns the last location handed to RedirectToLogin.
func (n *TerminalNavigator) Redirected() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.redirected
}
