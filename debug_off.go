//go:build !texstagedebug

package texstage

func staleAccess(TextureBox) {}
