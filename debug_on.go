//go:build texstagedebug

package texstage

import "fmt"

// staleAccess panics in debug builds when a box is read after its map
// bracket ended.
func staleAccess(b TextureBox) {
	panic(fmt.Sprintf("texstage: %v used after its map bracket ended", b))
}
