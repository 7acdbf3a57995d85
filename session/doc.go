// Package session defines the contract between the client core and the
// peer-to-peer session it drives.
//
// The session itself (connection management, encryption, delivery) is a
// black box. The core sees it through three things:
//
//   - [Session]: synchronous operations called from the network goroutine,
//     plus Iterate, which advances the protocol and delivers [Event] values.
//   - [AV]: the call subsystem. Its audio methods are called from the audio
//     goroutine concurrently with call control on the network goroutine.
//   - [Event]: a closed set of event structs, consumed with a type switch.
//
// The simnet package provides an in-memory implementation.
package session
