package state

var (
	accountPrefix = []byte("market/account/")
	listingPrefix = []byte("market/listing/")
	assetPrefix   = []byte("market/asset/")
	sequenceKey   = []byte("market/seq")
)

func accountKey(addr [20]byte) []byte {
	return append(append([]byte(nil), accountPrefix...), addr[:]...)
}

func listingKey(addr [20]byte) []byte {
	return append(append([]byte(nil), listingPrefix...), addr[:]...)
}

func assetKey(asset [32]byte) []byte {
	return append(append([]byte(nil), assetPrefix...), asset[:]...)
}
