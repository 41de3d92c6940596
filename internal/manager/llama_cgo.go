//go:build llama

package manager

// cgo link directives for the in-process llama client.
// - rpath $ORIGIN lets the loader find libllama.so next to the binary.
// - -L${SRCDIR}/../../bin lets the linker find it at build time.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
