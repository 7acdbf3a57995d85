// Package transfer implements the client side of Tox file transfers.
//
// Every transfer is keyed by the friend number, the session-assigned file
// number and its direction. Outgoing transfers are created in SendPending and
// wait for the peer's Accept; incoming transfers start in Receiving because the
// client accepts every offer.
//
//	SendPending --Accept--> Sending <--Pause/Resume--> SendPaused
//	Sending --EOF--> Finished
//	Receiving <--Pause/Resume--> ReceivePaused
//	Receiving --Finished--> Finished
//	any --Kill--> Killed
//
// A transfer's storage handle is open exactly while the transfer is in a
// non-terminal state. Finished and Killed transfers are evicted from the
// Manager. Data is pushed by Manager.Service, which the network goroutine calls
// once per iteration; it keeps handing chunks to the session until the session
// reports session.ErrBufferFull.
//
// Example:
//
//	m := transfer.NewManager(transfer.DiskStorage{Dir: downloads}, transfer.Options{})
//	t, err := m.Send(friendID, fileNumber, "/tmp/photo.jpg", size, sess.FileDataSize(friendID))
//	...
//	for {
//	    sess.Iterate(dispatcher)
//	    done, moved := m.Service(sess)
//	}
package transfer
