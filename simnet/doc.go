// Package simnet is an in-process Tox network.
//
// A Hub connects any number of Nodes; each Node implements session.Session
// and its AV implements session.AV. Nodes exchange friend requests,
// messages, group traffic, file chunks and call audio through the hub.
// Nothing touches a real network, which makes the package suitable for tests
// and for the demo binary's echo peer.
//
// The model follows the real protocol closely enough for a client:
//
//   - A node is connected once it has bootstrapped and the hub considers it
//     online (see Hub.SetOnline).
//   - Two nodes are connected friends when both are connected and each has
//     the other on its friend list. Connection changes, and the friend's
//     name and status on connect, are reported on the next Iterate.
//   - Friend requests are retried on every Iterate until the target is
//     reachable, and dropped if the address's nospam is stale.
//   - FileSendData returns session.ErrBufferFull once FileWindow chunks are
//     in flight; chunks land when the receiver iterates.
//   - Events are queued per node and delivered, in order, by Iterate.
//
// Save produces a deterministic JSON document, so loading a save and saving
// again gives the same bytes.
package simnet
