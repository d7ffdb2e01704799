package feedspec

// The canonical single-bit feed types and their composites, registered
// once at process start the way fw/fw/multicast.go registers its
// forwarding strategies in an init().
func init() {
	Register("NEXRAD2")
	Register("NEXRAD3")
	Register("CONDUIT")
	Register("FNEXRAD")
	Register("HDS")
	Register("IDS")
	Register("DDPLUS")
	Register("UNIWISC")
	Register("NIMAGE")
	Register("EXP")

	if _, err := RegisterComposite("NEXRAD", "NEXRAD2", "NEXRAD3"); err != nil {
		panic(err)
	}
	if _, err := RegisterComposite("ANY", "NEXRAD2", "NEXRAD3", "CONDUIT", "FNEXRAD", "HDS", "IDS", "DDPLUS", "UNIWISC", "NIMAGE", "EXP"); err != nil {
		panic(err)
	}
}
