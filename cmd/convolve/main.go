// Command convolve filters images with square convolution kernels.
//
//	convolve file in.png out.png --kernel gaussian --kernel-size 15
//	convolve dir ./input ./output --mode rect --tile-width 256 --tile-height 256
//	convolve enqueue ./input ./output --wait
//	convolve worker
//	convolve kernels
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
