package session

// BootstrapNode is a well-known node used to join the network.
type BootstrapNode struct {
	Address   string
	Port      uint16
	PublicKey string
}

// DefaultBootstrapNodes is the compiled-in bootstrap list used when the
// configuration provides none.
var DefaultBootstrapNodes = []BootstrapNode{
	{
		Address:   "node.tox.biribiri.org",
		Port:      33445,
		PublicKey: "F404ABAA1C99A9D37D61AB54898F56793E1DEF8BD46B1038B9D822E8460FAB67",
	},
}
