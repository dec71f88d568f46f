package sse

import "fmt"

// Format renders ev as wire-format SSE text, suitable for a test fixture
// standing in for a streamable HTTP server. Real servers are not part of
// this transport's scope (client-side only, per spec); this helper exists
// so the package's own tests -- and the transport's -- can construct
// fixtures without duplicating the wire grammar.
func Format(ev Event) string {
	var out string
	if ev.Name != "" && ev.Name != "message" {
		out += fmt.Sprintf("event: %s\n", ev.Name)
	}
	if ev.ID != "" {
		out += fmt.Sprintf("id: %s\n", ev.ID)
	}
	if ev.Retry != nil {
		out += fmt.Sprintf("retry: %d\n", *ev.Retry)
	}
	out += fmt.Sprintf("data: %s\n\n", ev.Data)
	return out
}
