// Package group tracks the conference chats the client is a member of.
//
// A Chat mirrors what the session reports: peers join as "<unknown>" and are
// renamed as name events arrive. The topic line is derived from the number of
// named peers and is rewritten on every membership change.
//
// Chats are owned by the network goroutine and exposed to the UI as View
// snapshots. The Directory maps session group numbers to chats.
package group
