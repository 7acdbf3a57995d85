// Package av runs the audio side of calls.
//
// Calls is the table of call slots shared between the network goroutine,
// which activates and deactivates slots as calls start and end, and the audio
// goroutine run by Loop. A slot's peer number is published before its active
// flag, so the loop never sees an active slot with a stale peer.
//
// Loop captures one frame at a time, sends it to every active call, polls
// every active call for received audio and queues it on the call's playback
// voice. Codec and transport errors drop the frame; they never stop the loop.
package av
