// Package session is the browser-side half of seller sign-in. A Coordinator
// holds one tab's session state, refreshes tokens transparently and keeps
// every tab of an origin in agreement through a Channel. Feed relays the
// server's session events onto that Channel.
package session
